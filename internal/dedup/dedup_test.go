package dedup

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type stubChecker struct {
	voted bool
	err   error
	calls int
}

func (c *stubChecker) AlreadyVoted(ctx context.Context, pollID int64, voterKey string) (bool, error) {
	c.calls++
	return c.voted, c.err
}

func TestTieredCacheHitShortCircuits(t *testing.T) {
	cache := &stubChecker{voted: true}
	store := &stubChecker{}
	tiered := NewTiered(zap.NewNop(), cache, store)

	voted, err := tiered.AlreadyVoted(context.Background(), 1, "u:7")
	if err != nil || !voted {
		t.Fatalf("voted=%v err=%v", voted, err)
	}
	if store.calls != 0 {
		t.Errorf("store tier called %d times, want 0", store.calls)
	}
}

func TestTieredCacheMissFallsThrough(t *testing.T) {
	cache := &stubChecker{voted: false}
	store := &stubChecker{voted: true}
	tiered := NewTiered(zap.NewNop(), cache, store)

	voted, err := tiered.AlreadyVoted(context.Background(), 1, "u:7")
	if err != nil || !voted {
		t.Fatalf("voted=%v err=%v", voted, err)
	}
	if store.calls != 1 {
		t.Errorf("store tier called %d times, want 1", store.calls)
	}
}

func TestTieredCacheErrorDegrades(t *testing.T) {
	cache := &stubChecker{err: errors.New("缓存不可用")}
	store := &stubChecker{voted: true}
	tiered := NewTiered(zap.NewNop(), cache, store)

	voted, err := tiered.AlreadyVoted(context.Background(), 1, "u:7")
	if err != nil {
		t.Fatalf("err = %v, want degradation to store tier", err)
	}
	if !voted {
		t.Error("voted = false, want store tier answer")
	}
}

func TestTieredStoreErrorPropagates(t *testing.T) {
	storeErr := errors.New("数据库不可用")
	cache := &stubChecker{}
	store := &stubChecker{err: storeErr}
	tiered := NewTiered(zap.NewNop(), cache, store)

	_, err := tiered.AlreadyVoted(context.Background(), 1, "u:7")
	if !errors.Is(err, storeErr) {
		t.Errorf("err = %v, want authoritative tier error", err)
	}
}

func TestTieredAllMiss(t *testing.T) {
	tiered := NewTiered(zap.NewNop(), &stubChecker{}, &stubChecker{})
	voted, err := tiered.AlreadyVoted(context.Background(), 1, "u:7")
	if err != nil || voted {
		t.Errorf("voted=%v err=%v, want miss", voted, err)
	}
}
