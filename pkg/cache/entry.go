package cache

import (
	"encoding/json"
	"time"
)

// negativePayload is what a negative entry serves: an empty list.
var negativePayload = json.RawMessage(`[]`)

// Entry is a cached catalog payload.
type Entry struct {
	// Data is the encoded, normalized payload
	Data json.RawMessage `json:"data"`

	// CachedAt is when the payload was stored
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// Negative marks an entry recording a failed upstream fetch
	Negative bool `json:"negative,omitempty"`
}

// NewEntry wraps data with a TTL starting now.
func NewEntry(data []byte, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Data:     json.RawMessage(data),
		CachedAt: now,
		Expires:  now.Add(ttl),
	}
}

// NewNegativeEntry records a failed fetch for ttl.
func NewNegativeEntry(ttl time.Duration) *Entry {
	e := NewEntry(negativePayload, ttl)
	e.Negative = true
	return e
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
