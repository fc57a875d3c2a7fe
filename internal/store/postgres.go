package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/btcguess/guess-engine/internal/model"
)

// PostgresStore implements GuessStore, ScoreStore and UserStore using
// PostgreSQL as the source of truth. Prices are stored as NUMERIC for exact
// decimal precision. The one-pending-guess-per-user invariant is enforced by
// the guesses_one_pending_per_user partial unique index (see migrate.go).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const guessColumns = `id, user_id, direction, status,
	initial_price::TEXT, final_price::TEXT, created_at, validated_at`

// --- Guesses ---

func (s *PostgresStore) InsertGuess(ctx context.Context, g *model.Guess) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO guesses (id, user_id, direction, status, initial_price, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		g.ID, g.UserID, g.Direction, g.Status, g.InitialPrice.String(), g.CreatedAt,
	)
	if isUniqueViolation(err, "guesses_one_pending_per_user") {
		return ErrPendingExists
	}
	return err
}

func (s *PostgresStore) GetGuess(ctx context.Context, id string) (*model.Guess, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+guessColumns+` FROM guesses WHERE id = $1`, id)
	g, err := scanGuess(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get guess %s: %w", id, err)
	}
	return g, nil
}

func (s *PostgresStore) GetPendingGuess(ctx context.Context, userID string) (*model.Guess, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+guessColumns+` FROM guesses WHERE user_id = $1 AND status = 'PENDING'`,
		userID)
	g, err := scanGuess(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pending guess for %s: %w", userID, err)
	}
	return g, nil
}

func (s *PostgresStore) ListGuessesByUser(ctx context.Context, userID string) ([]model.Guess, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+guessColumns+` FROM guesses
		 WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGuesses(rows)
}

func (s *PostgresStore) ListPendingGuesses(ctx context.Context) ([]model.Guess, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+guessColumns+` FROM guesses WHERE status = 'PENDING'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGuesses(rows)
}

func (s *PostgresStore) ListOverdueGuesses(ctx context.Context, cutoff time.Time) ([]model.Guess, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+guessColumns+` FROM guesses
		 WHERE status = 'PENDING' AND created_at <= $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGuesses(rows)
}

func (s *PostgresStore) SettleGuess(ctx context.Context, id string, finalPrice decimal.Decimal, status model.GuessStatus, validatedAt time.Time) (bool, error) {
	// Compare-and-swap on status: only a PENDING guess settles, so a lost
	// race leaves the row untouched and reports rowsAffected = 0.
	tag, err := s.pool.Exec(ctx,
		`UPDATE guesses
		 SET final_price = $2::NUMERIC, status = $3, validated_at = $4
		 WHERE id = $1 AND status = 'PENDING'`,
		id, finalPrice.String(), status, validatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) DeleteGuess(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM guesses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Scores ---

func (s *PostgresStore) GetScore(ctx context.Context, userID string) (*model.Score, error) {
	var sc model.Score
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, points, wins, losses, updated_at
		 FROM scores WHERE user_id = $1`, userID).
		Scan(&sc.UserID, &sc.Points, &sc.Wins, &sc.Losses, &sc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get score for %s: %w", userID, err)
	}
	return &sc, nil
}

func (s *PostgresStore) InsertScore(ctx context.Context, sc *model.Score) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scores (user_id, points, wins, losses, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sc.UserID, sc.Points, sc.Wins, sc.Losses, sc.UpdatedAt,
	)
	if isUniqueViolation(err, "scores_pkey") {
		return ErrScoreExists
	}
	return err
}

func (s *PostgresStore) UpdateScore(ctx context.Context, userID string, patch ScorePatch) (*model.Score, error) {
	var sc model.Score
	err := s.pool.QueryRow(ctx,
		`UPDATE scores
		 SET points = COALESCE($2, points),
		     wins = COALESCE($3, wins),
		     losses = COALESCE($4, losses),
		     updated_at = NOW()
		 WHERE user_id = $1
		 RETURNING user_id, points, wins, losses, updated_at`,
		userID, patch.Points, patch.Wins, patch.Losses).
		Scan(&sc.UserID, &sc.Points, &sc.Wins, &sc.Losses, &sc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update score for %s: %w", userID, err)
	}
	return &sc, nil
}

func (s *PostgresStore) ApplyScoreDelta(ctx context.Context, userID string, wins, losses, points int64) (*model.Score, error) {
	var sc model.Score
	err := s.pool.QueryRow(ctx,
		`UPDATE scores
		 SET wins = wins + $2, losses = losses + $3, points = points + $4,
		     updated_at = NOW()
		 WHERE user_id = $1
		 RETURNING user_id, points, wins, losses, updated_at`,
		userID, wins, losses, points).
		Scan(&sc.UserID, &sc.Points, &sc.Wins, &sc.Losses, &sc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("apply score delta for %s: %w", userID, err)
	}
	return &sc, nil
}

func (s *PostgresStore) ListScores(ctx context.Context) ([]model.Score, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, points, wins, losses, updated_at
		 FROM scores ORDER BY points DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []model.Score
	for rows.Next() {
		var sc model.Score
		if err := rows.Scan(&sc.UserID, &sc.Points, &sc.Wins, &sc.Losses, &sc.UpdatedAt); err != nil {
			return nil, err
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

func (s *PostgresStore) DeleteScore(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scores WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Users ---

func (s *PostgresStore) InsertUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, refresh_token_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.RefreshTokenHash, u.CreatedAt,
	)
	if isUniqueViolation(err, "users_email_key") {
		return ErrEmailExists
	}
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, refresh_token_hash, created_at
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.RefreshTokenHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, refresh_token_hash, created_at
		 FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.RefreshTokenHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) SetRefreshTokenHash(ctx context.Context, userID, hash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET refresh_token_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Scan helpers ---

func scanGuess(row pgx.Row) (*model.Guess, error) {
	var g model.Guess
	var initialPrice string
	var finalPrice *string

	if err := row.Scan(&g.ID, &g.UserID, &g.Direction, &g.Status,
		&initialPrice, &finalPrice, &g.CreatedAt, &g.ValidatedAt); err != nil {
		return nil, err
	}

	g.InitialPrice, _ = decimal.NewFromString(initialPrice)
	if finalPrice != nil {
		fp, _ := decimal.NewFromString(*finalPrice)
		g.FinalPrice = &fp
	}
	return &g, nil
}

func scanGuesses(rows pgx.Rows) ([]model.Guess, error) {
	var guesses []model.Guess
	for rows.Next() {
		g, err := scanGuess(rows)
		if err != nil {
			return nil, err
		}
		guesses = append(guesses, *g)
	}
	return guesses, rows.Err()
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
