// Package oracle provides the reference price for the tracked asset.
// The engine treats any failure here as transient: callers retry, state is
// left untouched.
package oracle

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable wraps every upstream failure (timeout, HTTP error, bad
// payload). A guess whose validation hits this error stays PENDING.
var ErrUnavailable = errors.New("oracle: price unavailable")

// Oracle returns the current reference price.
type Oracle interface {
	CurrentPrice(ctx context.Context) (decimal.Decimal, error)
}

// Snapshot is a fetched price with its upstream metadata, used by the live
// price feed.
type Snapshot struct {
	Price          decimal.Decimal `json:"price"`
	Change24hPct   decimal.Decimal `json:"change_24h_pct"`
	UpstreamUpdate string          `json:"upstream_update"`
}

// SnapshotOracle is implemented by oracles that can also report feed
// metadata alongside the price.
type SnapshotOracle interface {
	Oracle
	LatestSnapshot(ctx context.Context) (*Snapshot, error)
}
