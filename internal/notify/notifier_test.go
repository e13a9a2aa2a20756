package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/FleetEats/FleetEats/internal/common/logger"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, n)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type fixedLimiter struct {
	remaining int
}

func (l *fixedLimiter) Allow(ctx context.Context) bool {
	if l.remaining <= 0 {
		return false
	}
	l.remaining--
	return true
}

func TestLimitedDropsOverRate(t *testing.T) {
	next := &recordingDispatcher{}
	limited := NewLimited(&fixedLimiter{remaining: 3}, next, logger.Nop())

	for i := 0; i < 10; i++ {
		if err := limited.Dispatch(context.Background(), Notification{
			RecipientID: "customer-1",
			Title:       "Order update",
		}); err != nil {
			t.Fatalf("dispatch %d: unexpected error: %v", i, err)
		}
	}

	if got := next.count(); got != 3 {
		t.Fatalf("expected 3 delivered notifications, got %d", got)
	}
}

func TestLimitedPassesThroughErrors(t *testing.T) {
	wantErr := errors.New("broker unreachable")
	next := &recordingDispatcher{err: wantErr}
	limited := NewLimited(&fixedLimiter{remaining: 1}, next, logger.Nop())

	err := limited.Dispatch(context.Background(), Notification{RecipientID: "driver-1"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected downstream error, got %v", err)
	}
}

func TestNotificationEncoding(t *testing.T) {
	n := Notification{
		RecipientID: "partner-9",
		Title:       "New order",
		Body:        "Order ord-1 is waiting for acceptance",
		Data: Map{
			"order_id":    String("ord-1"),
			"total_cents": Int(2868),
			"express":     Bool(true),
			"geo":         Map{"lat": Float(51.5074)},
		},
	}

	raw, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["recipient_id"] != "partner-9" {
		t.Fatalf("unexpected recipient_id: %v", decoded["recipient_id"])
	}
	data, ok := decoded["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing data payload: %v", decoded["data"])
	}
	if data["order_id"] != "ord-1" {
		t.Fatalf("unexpected order_id: %v", data["order_id"])
	}
	if data["total_cents"] != float64(2868) {
		t.Fatalf("unexpected total_cents: %v", data["total_cents"])
	}
}

func TestLogDispatcherNeverFails(t *testing.T) {
	d := NewLogDispatcher(logger.Nop())
	if err := d.Dispatch(context.Background(), Notification{RecipientID: "customer-2", Body: "ok"}); err != nil {
		t.Fatalf("log dispatcher returned error: %v", err)
	}
}
