package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/btcguess/guess-engine/internal/model"
)

// CachedScoreStore wraps a primary ScoreStore (PostgreSQL) with a Redis
// read-through cache for the leaderboard and per-user score reads. Writes go
// to the primary store and invalidate the cache; reads check Redis first
// then fall back to the primary.
type CachedScoreStore struct {
	primary ScoreStore
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedScoreStore creates a cached wrapper around a primary score store.
func NewCachedScoreStore(primary ScoreStore, rdb *redis.Client, ttl time.Duration) *CachedScoreStore {
	return &CachedScoreStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedScoreStore) GetScore(ctx context.Context, userID string) (*model.Score, error) {
	data, err := s.rdb.Get(ctx, scoreKey(userID)).Bytes()
	if err == nil {
		var sc model.Score
		if json.Unmarshal(data, &sc) == nil {
			return &sc, nil
		}
	}

	sc, err := s.primary.GetScore(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.cacheScore(ctx, sc)
	return sc, nil
}

func (s *CachedScoreStore) ListScores(ctx context.Context) ([]model.Score, error) {
	data, err := s.rdb.Get(ctx, leaderboardKey).Bytes()
	if err == nil {
		var scores []model.Score
		if json.Unmarshal(data, &scores) == nil {
			return scores, nil
		}
	}

	scores, err := s.primary.ListScores(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(scores); err == nil {
		s.rdb.Set(ctx, leaderboardKey, data, s.ttl)
	}
	return scores, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedScoreStore) InsertScore(ctx context.Context, sc *model.Score) error {
	if err := s.primary.InsertScore(ctx, sc); err != nil {
		return err
	}
	s.invalidate(ctx, sc.UserID)
	return nil
}

func (s *CachedScoreStore) UpdateScore(ctx context.Context, userID string, patch ScorePatch) (*model.Score, error) {
	sc, err := s.primary.UpdateScore(ctx, userID, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return sc, nil
}

func (s *CachedScoreStore) ApplyScoreDelta(ctx context.Context, userID string, wins, losses, points int64) (*model.Score, error) {
	sc, err := s.primary.ApplyScoreDelta(ctx, userID, wins, losses, points)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return sc, nil
}

func (s *CachedScoreStore) DeleteScore(ctx context.Context, userID string) error {
	if err := s.primary.DeleteScore(ctx, userID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// --- Cache helpers ---

func (s *CachedScoreStore) cacheScore(ctx context.Context, sc *model.Score) {
	if data, err := json.Marshal(sc); err == nil {
		s.rdb.Set(ctx, scoreKey(sc.UserID), data, s.ttl)
	}
}

func (s *CachedScoreStore) invalidate(ctx context.Context, userID string) {
	s.rdb.Del(ctx, scoreKey(userID), leaderboardKey)
}

const leaderboardKey = "scores:leaderboard"

func scoreKey(userID string) string { return fmt.Sprintf("score:%s", userID) }
