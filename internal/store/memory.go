package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/btcguess/guess-engine/internal/model"
)

// MemoryStore implements GuessStore, ScoreStore and UserStore with in-memory
// maps. Used for testing and development. Not suitable for production
// (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	guesses map[string]*model.Guess
	scores  map[string]*model.Score
	users   map[string]*model.User
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		guesses: make(map[string]*model.Guess),
		scores:  make(map[string]*model.Score),
		users:   make(map[string]*model.User),
	}
}

// --- Guesses ---

func (s *MemoryStore) InsertGuess(_ context.Context, g *model.Guess) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check-and-insert under one write lock; this is the in-memory
	// equivalent of the partial unique index on (user_id, PENDING).
	for _, existing := range s.guesses {
		if existing.UserID == g.UserID && existing.Status == model.StatusPending {
			return ErrPendingExists
		}
	}

	copy := *g
	s.guesses[g.ID] = &copy
	return nil
}

func (s *MemoryStore) GetGuess(_ context.Context, id string) (*model.Guess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.guesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *g
	return &copy, nil
}

func (s *MemoryStore) GetPendingGuess(_ context.Context, userID string) (*model.Guess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.guesses {
		if g.UserID == userID && g.Status == model.StatusPending {
			copy := *g
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListGuessesByUser(_ context.Context, userID string) ([]model.Guess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Guess
	for _, g := range s.guesses {
		if g.UserID == userID {
			result = append(result, *g)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) ListPendingGuesses(_ context.Context) ([]model.Guess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Guess
	for _, g := range s.guesses {
		if g.Status == model.StatusPending {
			result = append(result, *g)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListOverdueGuesses(_ context.Context, cutoff time.Time) ([]model.Guess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Guess
	for _, g := range s.guesses {
		if g.Status == model.StatusPending && !g.CreatedAt.After(cutoff) {
			result = append(result, *g)
		}
	}
	return result, nil
}

func (s *MemoryStore) SettleGuess(_ context.Context, id string, finalPrice decimal.Decimal, status model.GuessStatus, validatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guesses[id]
	if !ok {
		return false, ErrNotFound
	}
	if g.Status != model.StatusPending {
		return false, nil
	}

	price := finalPrice
	at := validatedAt
	g.FinalPrice = &price
	g.Status = status
	g.ValidatedAt = &at
	return true, nil
}

func (s *MemoryStore) DeleteGuess(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.guesses[id]; !ok {
		return ErrNotFound
	}
	delete(s.guesses, id)
	return nil
}

// --- Scores ---

func (s *MemoryStore) GetScore(_ context.Context, userID string) (*model.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scores[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *sc
	return &copy, nil
}

func (s *MemoryStore) InsertScore(_ context.Context, sc *model.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scores[sc.UserID]; ok {
		return ErrScoreExists
	}
	copy := *sc
	s.scores[sc.UserID] = &copy
	return nil
}

func (s *MemoryStore) UpdateScore(_ context.Context, userID string, patch ScorePatch) (*model.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scores[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Points != nil {
		sc.Points = *patch.Points
	}
	if patch.Wins != nil {
		sc.Wins = *patch.Wins
	}
	if patch.Losses != nil {
		sc.Losses = *patch.Losses
	}
	sc.UpdatedAt = time.Now().UTC()
	copy := *sc
	return &copy, nil
}

func (s *MemoryStore) ApplyScoreDelta(_ context.Context, userID string, wins, losses, points int64) (*model.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scores[userID]
	if !ok {
		return nil, ErrNotFound
	}
	sc.Wins += wins
	sc.Losses += losses
	sc.Points += points
	sc.UpdatedAt = time.Now().UTC()
	copy := *sc
	return &copy, nil
}

func (s *MemoryStore) ListScores(_ context.Context) ([]model.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scores := make([]model.Score, 0, len(s.scores))
	for _, sc := range s.scores {
		scores = append(scores, *sc)
	}
	sort.Slice(scores, func(i, j int) bool {
		return scores[i].Points > scores[j].Points
	})
	return scores, nil
}

func (s *MemoryStore) DeleteScore(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scores[userID]; !ok {
		return ErrNotFound
	}
	delete(s.scores, userID)
	return nil
}

// --- Users ---

func (s *MemoryStore) InsertUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrEmailExists
		}
	}
	copy := *u
	s.users[u.ID] = &copy
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *u
	return &copy, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SetRefreshTokenHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.RefreshTokenHash = hash
	return nil
}
