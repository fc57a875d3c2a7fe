// Package sched runs the periodic validation sweep: find PENDING guesses
// older than the settlement delay and drive each one through the engine.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/btcguess/guess-engine/internal/metrics"
	"github.com/btcguess/guess-engine/internal/model"
	"github.com/btcguess/guess-engine/internal/store"
)

// Validator settles a single guess. Implemented by guess.Service.
type Validator interface {
	Validate(ctx context.Context, id, requesterID string) (*model.Guess, error)
}

// Sink receives settled guesses for live push. Publish is fire-and-forget:
// delivery failures never reach the sweep.
type Sink interface {
	Publish(guessID string, g *model.Guess)
}

// Scheduler drives overdue PENDING guesses through validation on a fixed
// interval. A single mutex serializes sweeps: a tick arriving while the
// previous sweep is still running blocks until it finishes rather than
// overlapping with it, so no guess is ever observed by two sweeps at once.
type Scheduler struct {
	guesses   store.GuessStore
	validator Validator
	sink      Sink
	delay     time.Duration
	interval  time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithSettlementDelay sets the minimum age before a PENDING guess settles.
func WithSettlementDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.delay = d }
}

// WithInterval sets the sweep period.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// New creates a scheduler. Pass nil for sink if live push is not needed.
func New(guesses store.GuessStore, validator Validator, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		guesses:   guesses,
		validator: validator,
		sink:      sink,
		delay:     60 * time.Second,
		interval:  time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the periodic sweep.
func (s *Scheduler) Start() error {
	if s.cron != nil {
		return fmt.Errorf("sched: already started")
	}

	c := cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() {
		if err := s.Sweep(context.Background()); err != nil {
			slog.Error("validation sweep failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("sched: add sweep job: %w", err)
	}

	c.Start()
	s.cron = c
	slog.Info("validation scheduler started",
		"interval", s.interval.String(),
		"settlement_delay", s.delay.String(),
	)
	return nil
}

// Stop halts the ticker and waits for an in-flight sweep to drain.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron = nil
	slog.Info("validation scheduler stopped")
}

// Sweep runs one validation pass. Guesses are validated sequentially; a
// failure on one guess is logged and the rest of the batch still runs. The
// lock is released on every path out.
func (s *Scheduler) Sweep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	cutoff := time.Now().UTC().Add(-s.delay)
	overdue, err := s.guesses.ListOverdueGuesses(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list overdue guesses: %w", err)
	}

	metrics.SweepBatchSize.Observe(float64(len(overdue)))
	if len(overdue) == 0 {
		return nil
	}

	slog.Info("validating overdue guesses", "count", len(overdue))

	for _, g := range overdue {
		// Internal call: no requester, ownership check bypassed.
		settled, err := s.validator.Validate(ctx, g.ID, "")
		if err != nil {
			slog.Error("guess validation failed", "guess", g.ID, "err", err)
			continue
		}
		slog.Info("guess settled",
			"guess", settled.ID,
			"user", settled.UserID,
			"outcome", string(settled.Status),
		)
		if s.sink != nil {
			s.sink.Publish(settled.ID, settled)
		}
	}
	return nil
}
