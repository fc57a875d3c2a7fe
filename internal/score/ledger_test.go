package score_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/btcguess/guess-engine/internal/score"
	"github.com/btcguess/guess-engine/internal/store"
)

func TestGetOrCreate(t *testing.T) {
	ledger := score.NewLedger(store.NewMemoryStore(), 0, 0)
	ctx := context.Background()

	sc, err := ledger.GetOrCreate(ctx, "user1")
	if err != nil {
		t.Fatalf("get or create failed: %v", err)
	}
	if sc.Points != 0 || sc.Wins != 0 || sc.Losses != 0 {
		t.Errorf("fresh score must be zeroed, got %+v", sc)
	}

	again, err := ledger.GetOrCreate(ctx, "user1")
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if again.UserID != sc.UserID {
		t.Error("expected the same score record back")
	}
}

func TestGetOrCreate_ConcurrentFirstAccess(t *testing.T) {
	ledger := score.NewLedger(store.NewMemoryStore(), 0, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.GetOrCreate(ctx, "user1"); err != nil {
				t.Errorf("concurrent get or create failed: %v", err)
			}
		}()
	}
	wg.Wait()

	scores, err := ledger.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(scores) != 1 {
		t.Errorf("expected a single score record, got %d", len(scores))
	}
}

func TestIncrements(t *testing.T) {
	ledger := score.NewLedger(store.NewMemoryStore(), 0, 0)
	ctx := context.Background()

	// Auto-creates on first increment.
	sc, err := ledger.IncrementWin(ctx, "user1")
	if err != nil {
		t.Fatalf("increment win failed: %v", err)
	}
	if sc.Wins != 1 || sc.Points != score.DefaultWinAward {
		t.Errorf("after win: %+v", sc)
	}

	sc, err = ledger.IncrementLoss(ctx, "user1")
	if err != nil {
		t.Fatalf("increment loss failed: %v", err)
	}
	if sc.Losses != 1 || sc.Points != score.DefaultWinAward-score.DefaultLossPenalty {
		t.Errorf("after loss: %+v", sc)
	}

	// Points may go negative.
	for i := 0; i < 3; i++ {
		if sc, err = ledger.IncrementLoss(ctx, "user1"); err != nil {
			t.Fatalf("increment loss failed: %v", err)
		}
	}
	if sc.Points >= 0 {
		t.Errorf("expected negative points, got %d", sc.Points)
	}
}

func TestCustomAmounts(t *testing.T) {
	ledger := score.NewLedger(store.NewMemoryStore(), 25, 3)
	ctx := context.Background()

	sc, err := ledger.IncrementWin(ctx, "user1")
	if err != nil {
		t.Fatalf("increment win failed: %v", err)
	}
	if sc.Points != 25 {
		t.Errorf("expected 25 points, got %d", sc.Points)
	}

	sc, err = ledger.IncrementLoss(ctx, "user1")
	if err != nil {
		t.Fatalf("increment loss failed: %v", err)
	}
	if sc.Points != 22 {
		t.Errorf("expected 22 points, got %d", sc.Points)
	}
}

func TestUpdate_NoAutoCreate(t *testing.T) {
	ledger := score.NewLedger(store.NewMemoryStore(), 0, 0)
	ctx := context.Background()

	points := int64(100)
	_, err := ledger.Update(ctx, "ghost", store.ScorePatch{Points: &points})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := ledger.GetOrCreate(ctx, "user1"); err != nil {
		t.Fatalf("get or create failed: %v", err)
	}
	sc, err := ledger.Update(ctx, "user1", store.ScorePatch{Points: &points})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if sc.Points != 100 {
		t.Errorf("expected 100 points, got %d", sc.Points)
	}
	if sc.Wins != 0 {
		t.Errorf("untouched field changed: wins=%d", sc.Wins)
	}
}

func TestList_OrderedByPoints(t *testing.T) {
	ledger := score.NewLedger(store.NewMemoryStore(), 0, 0)
	ctx := context.Background()

	if _, err := ledger.IncrementWin(ctx, "low"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := ledger.IncrementWin(ctx, "high"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := ledger.IncrementLoss(ctx, "negative"); err != nil {
		t.Fatal(err)
	}

	scores, err := ledger.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(scores))
	}
	want := []string{"high", "low", "negative"}
	for i, w := range want {
		if scores[i].UserID != w {
			t.Errorf("position %d: expected %s, got %s", i, w, scores[i].UserID)
		}
	}
}

func TestDelete(t *testing.T) {
	ledger := score.NewLedger(store.NewMemoryStore(), 0, 0)
	ctx := context.Background()

	if _, err := ledger.GetOrCreate(ctx, "user1"); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Delete(ctx, "user1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := ledger.Delete(ctx, "user1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
