package order

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransitionPipeline(t *testing.T) {
	steps := []Status{
		StatusCreated, StatusPaymentProcessing, StatusPaymentConfirmed,
		StatusAccepted, StatusPreparing, StatusReady, StatusReadyForPickup,
		StatusDriverAssigned, StatusPickedUp, StatusEnRoute, StatusDelivering,
		StatusDelivered,
	}
	for i := 0; i < len(steps)-1; i++ {
		if !CanTransition(steps[i], steps[i+1]) {
			t.Fatalf("expected %s -> %s allowed", steps[i], steps[i+1])
		}
	}
	// 不允许跳级
	if CanTransition(StatusCreated, StatusAccepted) {
		t.Fatalf("expected created -> accepted not allowed")
	}
	// 不允许回退
	if CanTransition(StatusDelivering, StatusPickedUp) {
		t.Fatalf("expected delivering -> picked_up not allowed")
	}
}

func TestCancellableFromEveryNonTerminalState(t *testing.T) {
	for from := range AllowTransition {
		if from.Terminal() {
			continue
		}
		if !CanTransition(from, StatusCancelled) {
			t.Fatalf("expected %s -> cancelled allowed", from)
		}
	}
}

func TestNoSelfLoopsAndTerminalStatesAreClosed(t *testing.T) {
	for from := range AllowTransition {
		if CanTransition(from, from) {
			t.Fatalf("expected no self loop for %s", from)
		}
	}
	for _, terminal := range []Status{StatusDelivered, StatusCancelled, StatusFailed} {
		for to := range AllowTransition {
			if CanTransition(terminal, to) {
				t.Fatalf("expected terminal %s to have no outgoing edge, found -> %s", terminal, to)
			}
		}
	}
}

func TestEveryStatusReachableFromCreated(t *testing.T) {
	reached := map[Status]bool{StatusCreated: true}
	queue := []Status{StatusCreated}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range AllowTransition[cur] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	for s := range AllowTransition {
		if !reached[s] {
			t.Fatalf("status %s is not reachable from created", s)
		}
	}
}

func TestApplyTransitionStampsTimestamps(t *testing.T) {
	now := time.Now()
	o := &Order{Status: StatusDelivering}
	if err := ApplyTransition(o, StatusDelivered, now); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if o.ActualDeliveryTime == nil || !o.ActualDeliveryTime.Equal(now) {
		t.Fatalf("expected actual delivery time stamped")
	}
	if !o.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at bumped")
	}
}

func TestApplyTransitionRejectsIllegalMoveAtomically(t *testing.T) {
	o := &Order{Status: StatusDelivering, UpdatedAt: time.Unix(100, 0)}
	err := ApplyTransition(o, StatusPickedUp, time.Now())

	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected IllegalTransitionError, got %v", err)
	}
	if illegal.From != StatusDelivering || illegal.To != StatusPickedUp {
		t.Fatalf("unexpected error payload: %+v", illegal)
	}
	if o.Status != StatusDelivering || !o.UpdatedAt.Equal(time.Unix(100, 0)) {
		t.Fatalf("order must not be modified on illegal transition")
	}
}
