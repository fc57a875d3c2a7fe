// Package guess implements the guess lifecycle: creation, lookup, and the
// one-shot PENDING → WON/LOST settlement transition.
//
// The service holds no mutable state of its own — it orchestrates the guess
// store, the score ledger and the price oracle, and is safe to call
// concurrently.
package guess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/btcguess/guess-engine/internal/metrics"
	"github.com/btcguess/guess-engine/internal/model"
	"github.com/btcguess/guess-engine/internal/oracle"
	"github.com/btcguess/guess-engine/internal/score"
	"github.com/btcguess/guess-engine/internal/store"
)

var (
	// ErrForbidden is returned when a requester tries to access another
	// user's guess.
	ErrForbidden = errors.New("guess: not the owner of this guess")

	// ErrInvalidDirection is returned for a direction outside {UP, DOWN}.
	ErrInvalidDirection = errors.New("guess: direction must be UP or DOWN")
)

// Service is the guess engine.
type Service struct {
	guesses store.GuessStore
	ledger  *score.Ledger
	prices  oracle.Oracle
}

// NewService creates a guess engine over the given store, ledger and oracle.
func NewService(guesses store.GuessStore, ledger *score.Ledger, prices oracle.Oracle) *Service {
	return &Service{guesses: guesses, ledger: ledger, prices: prices}
}

// Create records a new PENDING guess at the current BTC price. A user can
// hold at most one PENDING guess; the store enforces that atomically, the
// early check here only avoids a wasted oracle call.
func (s *Service) Create(ctx context.Context, userID string, direction model.Direction) (*model.Guess, error) {
	if !direction.Valid() {
		return nil, ErrInvalidDirection
	}

	if _, err := s.guesses.GetPendingGuess(ctx, userID); err == nil {
		return nil, store.ErrPendingExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	price, err := s.prices.CurrentPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch initial price: %w", err)
	}

	g := &model.Guess{
		ID:           uuid.New().String(),
		UserID:       userID,
		Direction:    direction,
		Status:       model.StatusPending,
		InitialPrice: price,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.guesses.InsertGuess(ctx, g); err != nil {
		return nil, err
	}

	metrics.GuessesCreated.WithLabelValues(string(direction)).Inc()
	return g, nil
}

// Get returns a guess by id. With a non-empty requesterID the guess must
// belong to that user; internal callers pass "" to skip the ownership check.
func (s *Service) Get(ctx context.Context, id, requesterID string) (*model.Guess, error) {
	g, err := s.guesses.GetGuess(ctx, id)
	if err != nil {
		return nil, err
	}
	if requesterID != "" && g.UserID != requesterID {
		return nil, ErrForbidden
	}
	return g, nil
}

// ListByUser returns the user's guesses, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]model.Guess, error) {
	guesses, err := s.guesses.ListGuessesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if guesses == nil {
		guesses = []model.Guess{}
	}
	return guesses, nil
}

// ListPending returns all PENDING guesses.
func (s *Service) ListPending(ctx context.Context) ([]model.Guess, error) {
	guesses, err := s.guesses.ListPendingGuesses(ctx)
	if err != nil {
		return nil, err
	}
	if guesses == nil {
		guesses = []model.Guess{}
	}
	return guesses, nil
}

// Validate settles a guess against a freshly fetched price. It is
// idempotent: an already settled guess is returned unchanged without
// touching the oracle or the ledger. An oracle failure leaves the guess
// PENDING and unmodified, safe to retry on the next sweep.
//
// Tie rule: a final price exactly equal to the initial price did not go up,
// so it settles LOST for UP and WON for DOWN.
func (s *Service) Validate(ctx context.Context, id, requesterID string) (*model.Guess, error) {
	g, err := s.Get(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}
	if g.Settled() {
		return g, nil
	}

	finalPrice, err := s.prices.CurrentPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch settlement price: %w", err)
	}

	wentUp := finalPrice.GreaterThan(g.InitialPrice)
	guessedUp := g.Direction == model.DirectionUp
	won := wentUp == guessedUp

	status := model.StatusLost
	if won {
		status = model.StatusWon
	}
	validatedAt := time.Now().UTC()

	settled, err := s.guesses.SettleGuess(ctx, id, finalPrice, status, validatedAt)
	if err != nil {
		return nil, fmt.Errorf("settle guess %s: %w", id, err)
	}
	if !settled {
		// Lost the settle race: someone else already transitioned this
		// guess and credited the ledger. Return their result.
		return s.guesses.GetGuess(ctx, id)
	}

	if won {
		_, err = s.ledger.IncrementWin(ctx, g.UserID)
	} else {
		_, err = s.ledger.IncrementLoss(ctx, g.UserID)
	}
	if err != nil {
		// The settlement itself is committed; surface the ledger failure.
		return nil, fmt.Errorf("update score for %s: %w", g.UserID, err)
	}

	metrics.Settlements.WithLabelValues(string(status)).Inc()

	g.FinalPrice = &finalPrice
	g.Status = status
	g.ValidatedAt = &validatedAt
	return g, nil
}

// Delete removes a guess by id regardless of status. Scores are never
// reversed: deleting a settled guess keeps its win or loss on the ledger.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.guesses.DeleteGuess(ctx, id)
}
