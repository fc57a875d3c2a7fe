package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/btcguess/guess-engine/internal/metrics"
	"github.com/btcguess/guess-engine/internal/oracle"
)

// PricePoller periodically fetches the BTC price and broadcasts it through
// the hub. Fetches are skipped while no clients are connected so idle
// deployments spend no upstream API credits.
type PricePoller struct {
	prices   oracle.SnapshotOracle
	hub      *Hub
	interval time.Duration
	done     chan struct{}
}

// NewPricePoller creates a poller; interval ≤ 0 defaults to 5 seconds.
func NewPricePoller(prices oracle.SnapshotOracle, hub *Hub, interval time.Duration) *PricePoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PricePoller{
		prices:   prices,
		hub:      hub,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Run polls until Stop is called. Must be called in a goroutine.
func (p *PricePoller) Run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if p.hub.ClientCount() == 0 {
				continue
			}
			p.poll()
		}
	}
}

// Stop halts the poller.
func (p *PricePoller) Stop() {
	close(p.done)
}

func (p *PricePoller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	snap, err := p.prices.LatestSnapshot(ctx)
	if err != nil {
		metrics.PriceFetches.WithLabelValues("error").Inc()
		slog.Error("price poll failed", "err", err)
		p.hub.BroadcastPriceError("failed to fetch BTC price")
		return
	}

	metrics.PriceFetches.WithLabelValues("ok").Inc()
	p.hub.BroadcastPrice(snap)
}
