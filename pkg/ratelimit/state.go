// Package ratelimit tracks the Shopify GraphQL cost throttle and gates
// requests. Every GraphQL response reports the bucket in
// extensions.cost.throttleStatus; the tracker stores it so that callers can
// wait for the bucket to refill instead of being answered with THROTTLED.
package ratelimit

import (
	"math"
	"time"
)

// Redis key suffixes for throttle state storage. Keys are prefixed with
// "catalog:throttle:<scope>:".
const (
	redisFieldAvailable   = "available"
	redisFieldMaximum     = "maximum"
	redisFieldRestoreRate = "restore_rate"
	redisFieldLastUpdate  = "last_update"
)

// Thresholds, as a fraction of the bucket size.
const (
	// HealthyRatio marks a bucket with plenty of room.
	HealthyRatio = 0.5

	// WarningRatio marks a bucket close to exhaustion.
	WarningRatio = 0.1
)

// ThrottleStatus mirrors extensions.cost.throttleStatus.
type ThrottleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

// State is the last known cost bucket for one API.
type State struct {
	// Available is the cost budget reported at LastUpdate
	Available float64 `json:"available"`

	// Maximum is the bucket size
	Maximum float64 `json:"maximum"`

	// RestoreRate is the refill rate in cost points per second
	RestoreRate float64 `json:"restore_rate"`

	// LastUpdate is when the bucket was reported
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true while at least HealthyRatio of the bucket is available
	IsHealthy bool `json:"is_healthy"`
}

// StateFromStatus builds a state from a response's throttle status.
func StateFromStatus(s ThrottleStatus, now time.Time) *State {
	state := &State{
		Available:   s.CurrentlyAvailable,
		Maximum:     s.MaximumAvailable,
		RestoreRate: s.RestoreRate,
		LastUpdate:  now,
	}
	state.UpdateHealth()
	return state
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// EstimatedAvailable projects the bucket to now using the restore rate.
func (s *State) EstimatedAvailable(now time.Time) float64 {
	elapsed := now.Sub(s.LastUpdate).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	estimate := s.Available + elapsed*s.RestoreRate
	if s.Maximum > 0 {
		estimate = math.Min(estimate, s.Maximum)
	}
	return estimate
}

// WaitFor returns how long to wait until cost points are available.
// Returns 0 if they already are or the restore rate is unknown.
func (s *State) WaitFor(cost float64, now time.Time) time.Duration {
	missing := cost - s.EstimatedAvailable(now)
	if missing <= 0 || s.RestoreRate <= 0 {
		return 0
	}
	return time.Duration(missing / s.RestoreRate * float64(time.Second))
}

// NeedsThrottling returns true if the bucket is below WarningRatio.
func (s *State) NeedsThrottling(now time.Time) bool {
	if s.Maximum <= 0 {
		return false
	}
	return s.EstimatedAvailable(now) < s.Maximum*WarningRatio
}

// UpdateHealth updates IsHealthy from Available.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Maximum <= 0 || s.Available >= s.Maximum*HealthyRatio
}
