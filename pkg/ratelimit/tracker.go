package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	throttleAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_throttle_available",
		Help: "Cost points available in the last reported Shopify throttle bucket",
	}, []string{"scope"})

	throttleWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_throttle_waits_total",
		Help: "Total number of requests delayed waiting for the cost bucket to refill",
	}, []string{"scope"})

	throttleWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_throttle_wait_seconds",
		Help:    "Time spent waiting for the cost bucket to refill",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"scope"})
)

// DefaultMaxWait bounds a single throttle wait.
const DefaultMaxWait = 5 * time.Second

// stateTTL drops state nobody refreshed; a cold bucket is assumed full.
const stateTTL = 2 * time.Minute

// Tracker records the cost bucket for one API scope and gates requests.
// State is shared through Redis when a client is given, otherwise it is
// kept in process.
type Tracker struct {
	redis   *redis.Client
	scope   string
	maxWait time.Duration
	logger  zerolog.Logger

	mu    sync.Mutex
	local *State
}

// NewTracker creates a tracker for scope (e.g. "storefront", "admin").
// redisClient may be nil.
func NewTracker(redisClient *redis.Client, scope string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:   redisClient,
		scope:   scope,
		maxWait: DefaultMaxWait,
		logger:  logger.With().Str("scope", scope).Logger(),
	}
}

// SetMaxWait overrides DefaultMaxWait.
func (t *Tracker) SetMaxWait(d time.Duration) {
	t.maxWait = d
}

func (t *Tracker) key(field string) string {
	return "catalog:throttle:" + t.scope + ":" + field
}

// GetState returns the last known state, or nil if none is recorded.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.local == nil {
			return nil, nil
		}
		s := *t.local
		return &s, nil
	}

	vals, err := t.redis.MGet(ctx,
		t.key(redisFieldAvailable),
		t.key(redisFieldMaximum),
		t.key(redisFieldRestoreRate),
		t.key(redisFieldLastUpdate),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("get throttle state: %w", err)
	}
	for _, v := range vals {
		if v == nil {
			return nil, nil
		}
	}

	floats := make([]float64, 3)
	for i := range floats {
		floats[i], err = strconv.ParseFloat(fmt.Sprint(vals[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse throttle state: %w", err)
		}
	}
	lastUpdate, err := strconv.ParseInt(fmt.Sprint(vals[3]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse throttle last update: %w", err)
	}

	state := &State{
		Available:   floats[0],
		Maximum:     floats[1],
		RestoreRate: floats[2],
		LastUpdate:  time.UnixMilli(lastUpdate),
	}
	state.UpdateHealth()
	return state, nil
}

// Update records a throttle status reported by a response.
func (t *Tracker) Update(ctx context.Context, status ThrottleStatus) error {
	state := StateFromStatus(status, time.Now())

	if t.redis == nil {
		t.mu.Lock()
		t.local = state
		t.mu.Unlock()
	} else {
		pipe := t.redis.Pipeline()
		pipe.Set(ctx, t.key(redisFieldAvailable), state.Available, stateTTL)
		pipe.Set(ctx, t.key(redisFieldMaximum), state.Maximum, stateTTL)
		pipe.Set(ctx, t.key(redisFieldRestoreRate), state.RestoreRate, stateTTL)
		pipe.Set(ctx, t.key(redisFieldLastUpdate), state.LastUpdate.UnixMilli(), stateTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store throttle state in redis: %w", err)
		}
	}

	throttleAvailable.WithLabelValues(t.scope).Set(state.Available)

	if state.NeedsThrottling(state.LastUpdate) {
		t.logger.Warn().
			Float64("available", state.Available).
			Float64("maximum", state.Maximum).
			Msg("Shopify cost bucket nearly exhausted")
	} else {
		t.logger.Debug().
			Float64("available", state.Available).
			Bool("is_healthy", state.IsHealthy).
			Msg("Throttle state updated")
	}
	return nil
}

// Wait blocks until cost points are estimated to be available, at most
// the tracker's max wait. Without recorded state it returns immediately.
// A state lookup failure is logged and does not block the request.
func (t *Tracker) Wait(ctx context.Context, cost float64) error {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Throttle state lookup failed")
		return nil
	}
	if state == nil {
		return nil
	}

	wait := state.WaitFor(cost, time.Now())
	if wait <= 0 {
		return nil
	}
	if wait > t.maxWait {
		wait = t.maxWait
	}

	throttleWaitsTotal.WithLabelValues(t.scope).Inc()
	throttleWaitSeconds.WithLabelValues(t.scope).Observe(wait.Seconds())
	t.logger.Warn().
		Float64("cost", cost).
		Dur("wait", wait).
		Msg("Waiting for cost bucket to refill")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
