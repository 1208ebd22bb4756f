package ratelimit

import (
	"testing"
	"time"
)

func TestState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *State
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &State{LastUpdate: time.Now()},
			maxAge:   time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &State{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsStale(tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_EstimatedAvailable(t *testing.T) {
	now := time.Now()
	state := &State{Available: 100, Maximum: 1000, RestoreRate: 50, LastUpdate: now.Add(-2 * time.Second)}

	if got := state.EstimatedAvailable(now); got != 200 {
		t.Errorf("EstimatedAvailable() = %v, want 200", got)
	}

	// capped at the bucket size
	state.LastUpdate = now.Add(-time.Hour)
	if got := state.EstimatedAvailable(now); got != 1000 {
		t.Errorf("EstimatedAvailable() = %v, want 1000", got)
	}
}

func TestState_WaitFor(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		state *State
		cost  float64
		want  time.Duration
	}{
		{
			name:  "enough budget",
			state: &State{Available: 500, Maximum: 1000, RestoreRate: 50, LastUpdate: now},
			cost:  100,
			want:  0,
		},
		{
			name:  "short by 100 at 50 per second",
			state: &State{Available: 0, Maximum: 1000, RestoreRate: 50, LastUpdate: now},
			cost:  100,
			want:  2 * time.Second,
		},
		{
			name:  "unknown restore rate",
			state: &State{Available: 0, Maximum: 1000, LastUpdate: now},
			cost:  100,
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.WaitFor(tt.cost, now); got != tt.want {
				t.Errorf("WaitFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_Health(t *testing.T) {
	tests := []struct {
		name         string
		status       ThrottleStatus
		wantHealthy  bool
		wantThrottle bool
	}{
		{
			name:         "full bucket",
			status:       ThrottleStatus{MaximumAvailable: 1000, CurrentlyAvailable: 1000, RestoreRate: 50},
			wantHealthy:  true,
			wantThrottle: false,
		},
		{
			name:         "half bucket",
			status:       ThrottleStatus{MaximumAvailable: 1000, CurrentlyAvailable: 500, RestoreRate: 50},
			wantHealthy:  true,
			wantThrottle: false,
		},
		{
			name:         "low bucket",
			status:       ThrottleStatus{MaximumAvailable: 1000, CurrentlyAvailable: 200, RestoreRate: 50},
			wantHealthy:  false,
			wantThrottle: false,
		},
		{
			name:         "nearly empty",
			status:       ThrottleStatus{MaximumAvailable: 1000, CurrentlyAvailable: 50, RestoreRate: 50},
			wantHealthy:  false,
			wantThrottle: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now()
			state := StateFromStatus(tt.status, now)
			if state.IsHealthy != tt.wantHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.wantHealthy)
			}
			if got := state.NeedsThrottling(now); got != tt.wantThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.wantThrottle)
			}
		})
	}
}
