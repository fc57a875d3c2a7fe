// Package store defines the persistence interfaces for the guess engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache for score reads), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/btcguess/guess-engine/internal/model"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrPendingExists is returned by InsertGuess when the user already has
	// a PENDING guess. Implementations must enforce this atomically (unique
	// constraint or insert under a write lock), never by a bare read-check.
	ErrPendingExists = errors.New("store: user already has a pending guess")

	// ErrScoreExists is returned by InsertScore for a duplicate user id.
	ErrScoreExists = errors.New("store: score already exists")

	// ErrEmailExists is returned by InsertUser for a duplicate email.
	ErrEmailExists = errors.New("store: email already registered")
)

// ScorePatch is a partial score update; nil fields are left untouched.
type ScorePatch struct {
	Points *int64
	Wins   *int64
	Losses *int64
}

// GuessStore persists guesses. It is the enforcement point for the
// one-PENDING-guess-per-user invariant.
type GuessStore interface {
	// InsertGuess persists a new guess. Returns ErrPendingExists if the
	// owner already has a guess with status PENDING.
	InsertGuess(ctx context.Context, g *model.Guess) error

	// GetGuess retrieves a guess by id.
	GetGuess(ctx context.Context, id string) (*model.Guess, error)

	// GetPendingGuess returns the user's PENDING guess, or ErrNotFound.
	GetPendingGuess(ctx context.Context, userID string) (*model.Guess, error)

	// ListGuessesByUser returns the user's guesses, newest first.
	ListGuessesByUser(ctx context.Context, userID string) ([]model.Guess, error)

	// ListPendingGuesses returns all PENDING guesses.
	ListPendingGuesses(ctx context.Context) ([]model.Guess, error)

	// ListOverdueGuesses returns PENDING guesses created at or before cutoff.
	ListOverdueGuesses(ctx context.Context, cutoff time.Time) ([]model.Guess, error)

	// SettleGuess transitions a guess out of PENDING, setting final price,
	// status and validation time in one update. It is a compare-and-swap:
	// the update applies only if the guess is still PENDING, and the
	// returned bool reports whether this call performed the transition.
	SettleGuess(ctx context.Context, id string, finalPrice decimal.Decimal, status model.GuessStatus, validatedAt time.Time) (bool, error)

	// DeleteGuess removes a guess regardless of status.
	DeleteGuess(ctx context.Context, id string) error
}

// ScoreStore persists per-user scores keyed by user id.
type ScoreStore interface {
	// GetScore retrieves a user's score.
	GetScore(ctx context.Context, userID string) (*model.Score, error)

	// InsertScore persists a new score row. Returns ErrScoreExists if one
	// already exists for the user; concurrent first-touch callers rely on
	// this to avoid duplicates.
	InsertScore(ctx context.Context, s *model.Score) error

	// UpdateScore overwrites the non-nil fields of patch.
	UpdateScore(ctx context.Context, userID string, patch ScorePatch) (*model.Score, error)

	// ApplyScoreDelta atomically adds the deltas to an existing score.
	ApplyScoreDelta(ctx context.Context, userID string, wins, losses, points int64) (*model.Score, error)

	// ListScores returns all scores ordered by points descending.
	ListScores(ctx context.Context) ([]model.Score, error)

	// DeleteScore removes a user's score.
	DeleteScore(ctx context.Context, userID string) error
}

// UserStore persists registered users.
type UserStore interface {
	// InsertUser persists a new user. Returns ErrEmailExists on duplicate email.
	InsertUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by id.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// SetRefreshTokenHash stores the current refresh token fingerprint;
	// an empty hash clears it (logout).
	SetRefreshTokenHash(ctx context.Context, userID, hash string) error
}
