// Package score implements the per-user win/loss ledger. Scores are created
// lazily on first access; every caller goes through GetOrCreate so the
// auto-vivification semantics live in exactly one place.
package score

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcguess/guess-engine/internal/model"
	"github.com/btcguess/guess-engine/internal/store"
)

// Default point amounts, matching the game rules: a win awards more than a
// loss deducts, and points may go negative.
const (
	DefaultWinAward    = 10
	DefaultLossPenalty = 5
)

// Ledger is the score accounting component. It holds no state of its own;
// the store is the single owner of Score records.
type Ledger struct {
	store       store.ScoreStore
	winAward    int64
	lossPenalty int64
}

// NewLedger creates a ledger. Non-positive award/penalty values fall back
// to the defaults.
func NewLedger(st store.ScoreStore, winAward, lossPenalty int64) *Ledger {
	if winAward <= 0 {
		winAward = DefaultWinAward
	}
	if lossPenalty <= 0 {
		lossPenalty = DefaultLossPenalty
	}
	return &Ledger{store: st, winAward: winAward, lossPenalty: lossPenalty}
}

// GetOrCreate returns the user's score, creating a zeroed one if none
// exists. Safe under concurrent first access: a losing inserter re-reads
// the row the winner created.
func (l *Ledger) GetOrCreate(ctx context.Context, userID string) (*model.Score, error) {
	sc, err := l.store.GetScore(ctx, userID)
	if err == nil {
		return sc, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	fresh := &model.Score{UserID: userID, UpdatedAt: time.Now().UTC()}
	switch err := l.store.InsertScore(ctx, fresh); {
	case err == nil:
		return fresh, nil
	case errors.Is(err, store.ErrScoreExists):
		return l.store.GetScore(ctx, userID)
	default:
		return nil, fmt.Errorf("create score for %s: %w", userID, err)
	}
}

// IncrementWin records a won guess: wins += 1, points += winAward.
func (l *Ledger) IncrementWin(ctx context.Context, userID string) (*model.Score, error) {
	if _, err := l.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}
	return l.store.ApplyScoreDelta(ctx, userID, 1, 0, l.winAward)
}

// IncrementLoss records a lost guess: losses += 1, points -= lossPenalty.
func (l *Ledger) IncrementLoss(ctx context.Context, userID string) (*model.Score, error) {
	if _, err := l.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}
	return l.store.ApplyScoreDelta(ctx, userID, 0, 1, -l.lossPenalty)
}

// Update overwrites the supplied fields. Unlike the increments it does not
// auto-create: updating a score that was never touched is an error.
func (l *Ledger) Update(ctx context.Context, userID string, patch store.ScorePatch) (*model.Score, error) {
	return l.store.UpdateScore(ctx, userID, patch)
}

// Delete removes a user's score.
func (l *Ledger) Delete(ctx context.Context, userID string) error {
	return l.store.DeleteScore(ctx, userID)
}

// List returns all scores ordered by points descending.
func (l *Ledger) List(ctx context.Context) ([]model.Score, error) {
	scores, err := l.store.ListScores(ctx)
	if err != nil {
		return nil, err
	}
	if scores == nil {
		scores = []model.Score{}
	}
	return scores, nil
}
