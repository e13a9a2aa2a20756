package degrade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FleetEats/FleetEats/internal/common/logger"
)

type partner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestCache() *Cache {
	return NewCache(NewMemoryStore(), NewHealthTracker(1, time.Minute), logger.Nop())
}

func TestExecuteCachesSuccessAndMarksHealthy(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	got, err := Execute(ctx, c, "repository", "partners:all", func(ctx context.Context) ([]partner, error) {
		return []partner{{ID: "p1", Name: "Sushi House"}}, nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if st := c.Health().State("repository"); st != StateHealthy {
		t.Fatalf("expected healthy, got %s", st)
	}

	entry, ok, _ := c.store.Get(ctx, "partners:all")
	if !ok {
		t.Fatalf("expected value cached")
	}
	if entry.Age(time.Now()) < 0 {
		t.Fatalf("entry age must not be negative")
	}
}

func TestExecuteServesStaleValueOnFailure(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	_, err := Execute(ctx, c, "repository", "partners:all", func(ctx context.Context) ([]partner, error) {
		return []partner{{ID: "p1", Name: "Sushi House"}}, nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// 远程连续失败，应回放缓存值并标记降级
	remoteErr := errors.New("cloudkit unavailable")
	got, err := Execute(ctx, c, "repository", "partners:all", func(ctx context.Context) ([]partner, error) {
		return nil, remoteErr
	})
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Sushi House" {
		t.Fatalf("unexpected fallback value: %+v", got)
	}
	if st := c.Health().State("repository"); st != StateDegraded {
		t.Fatalf("expected degraded, got %s", st)
	}
	if c.Health().LastError("repository") == nil {
		t.Fatalf("expected last error recorded")
	}
}

func TestExecutePropagatesFailureWithoutCache(t *testing.T) {
	c := newTestCache()

	remoteErr := errors.New("cloudkit unavailable")
	_, err := Execute(context.Background(), c, "repository", "orders:u1", func(ctx context.Context) ([]partner, error) {
		return nil, remoteErr
	})
	if !errors.Is(err, remoteErr) {
		t.Fatalf("expected original error, got %v", err)
	}
}

func TestExecuteRecoversHealthAfterSuccess(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	_, _ = Execute(ctx, c, "repository", "k", func(ctx context.Context) (int, error) {
		return 0, errors.New("down")
	})
	if st := c.Health().State("repository"); st != StateDegraded {
		t.Fatalf("expected degraded, got %s", st)
	}

	_, err := Execute(ctx, c, "repository", "k", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if st := c.Health().State("repository"); st != StateHealthy {
		t.Fatalf("expected healthy after success, got %s", st)
	}
}

func TestHealthTrackerProbesAfterResetTimeout(t *testing.T) {
	h := NewHealthTracker(1, time.Millisecond)
	h.ReportFailure("gateway", errors.New("down"))
	if st := h.State("gateway"); st != StateDegraded {
		t.Fatalf("expected degraded, got %s", st)
	}
	time.Sleep(5 * time.Millisecond)
	if st := h.State("gateway"); st != StateProbing {
		t.Fatalf("expected probing after reset timeout, got %s", st)
	}
}
