package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTracker_LocalState(t *testing.T) {
	tracker := NewTracker(nil, "storefront", zerolog.Nop())
	ctx := context.Background()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state != nil {
		t.Fatalf("GetState() = %+v, want nil before any update", state)
	}

	status := ThrottleStatus{MaximumAvailable: 1000, CurrentlyAvailable: 980, RestoreRate: 50}
	if err := tracker.Update(ctx, status); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	state, err = tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Available != 980 || state.Maximum != 1000 || state.RestoreRate != 50 {
		t.Errorf("GetState() = %+v", state)
	}
	if !state.IsHealthy {
		t.Error("IsHealthy = false, want true")
	}
}

func TestTracker_WaitWithoutStateReturnsImmediately(t *testing.T) {
	tracker := NewTracker(nil, "admin", zerolog.Nop())

	start := time.Now()
	if err := tracker.Wait(context.Background(), 1000); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if d := time.Since(start); d > 50*time.Millisecond {
		t.Errorf("Wait() took %v, want immediate", d)
	}
}

func TestTracker_WaitIsBounded(t *testing.T) {
	tracker := NewTracker(nil, "admin", zerolog.Nop())
	tracker.SetMaxWait(100 * time.Millisecond)
	ctx := context.Background()

	// 1000 points short at 1 point per second would be minutes
	_ = tracker.Update(ctx, ThrottleStatus{MaximumAvailable: 2000, CurrentlyAvailable: 0, RestoreRate: 1})

	start := time.Now()
	if err := tracker.Wait(ctx, 1000); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	d := time.Since(start)
	if d < 90*time.Millisecond || d > time.Second {
		t.Errorf("Wait() took %v, want about 100ms", d)
	}
}

func TestTracker_WaitHonoursContext(t *testing.T) {
	tracker := NewTracker(nil, "admin", zerolog.Nop())
	ctx := context.Background()
	_ = tracker.Update(ctx, ThrottleStatus{MaximumAvailable: 1000, CurrentlyAvailable: 0, RestoreRate: 1})

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	if err := tracker.Wait(ctx, 500); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestTracker_WaitWithBudgetIsImmediate(t *testing.T) {
	tracker := NewTracker(nil, "storefront", zerolog.Nop())
	ctx := context.Background()
	_ = tracker.Update(ctx, ThrottleStatus{MaximumAvailable: 1000, CurrentlyAvailable: 900, RestoreRate: 50})

	start := time.Now()
	if err := tracker.Wait(ctx, 100); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if d := time.Since(start); d > 50*time.Millisecond {
		t.Errorf("Wait() took %v, want immediate", d)
	}
}
