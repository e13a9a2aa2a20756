package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type transientErr struct{ msg string }

func (e transientErr) Error() string   { return e.msg }
func (e transientErr) Transient() bool { return true }

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return transientErr{"temporary outage"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoSurfacesLastErrorAfterExhaustion(t *testing.T) {
	calls := 0
	wantErr := transientErr{"still down"}
	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	var te transientErr
	if !errors.As(err, &te) || te.msg != wantErr.msg {
		t.Fatalf("expected transient error surfaced, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoNeverRetriesPermanentErrors(t *testing.T) {
	calls := 0
	permanent := errors.New("validation failed")
	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error must not be retried, got %d attempts", calls)
	}
}

func TestDoTreatsDeadlineAsTransient(t *testing.T) {
	if !IsTransient(context.DeadlineExceeded) {
		t.Fatalf("deadline exceeded should classify as transient")
	}
	if IsTransient(errors.New("plain")) {
		t.Fatalf("plain error should not classify as transient")
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxAttempts: 10, BaseBackoff: 50 * time.Millisecond}
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return transientErr{"down"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt before cancel, got %d", calls)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	if got := p.backoff(0); got != 100*time.Millisecond {
		t.Fatalf("backoff(0) = %v", got)
	}
	if got := p.backoff(1); got != 200*time.Millisecond {
		t.Fatalf("backoff(1) = %v", got)
	}
	if got := p.backoff(3); got != 300*time.Millisecond {
		t.Fatalf("backoff(3) should cap at max, got %v", got)
	}
}

func TestDo1ReturnsValue(t *testing.T) {
	got, err := Do1(context.Background(), fastPolicy(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("Do1 = (%d, %v)", got, err)
	}
}
