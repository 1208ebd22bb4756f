package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Sternrassler/car-catalog/pkg/cache"
)

// ErrKVDown is returned by MemoryKV while Fail is set.
var ErrKVDown = errors.New("kv unavailable")

// MemoryKV is an in-process cache.KV for tests.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]*cache.Entry

	// Fail makes every operation return ErrKVDown
	Fail bool

	// Tracking
	Gets, Sets, Deletes int
}

var _ cache.KV = (*MemoryKV)(nil)

// NewMemoryKV creates an empty store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]*cache.Entry)}
}

// Get returns a copy of the entry for key.
func (m *MemoryKV) Get(_ context.Context, key cache.Key) (*cache.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.Fail {
		return nil, ErrKVDown
	}
	e, ok := m.entries[key.String()]
	if !ok || e.IsExpired() {
		return nil, cache.ErrCacheMiss
	}
	out := *e
	return &out, nil
}

// Set stores a copy of entry.
func (m *MemoryKV) Set(_ context.Context, key cache.Key, entry *cache.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	if m.Fail {
		return ErrKVDown
	}
	out := *entry
	m.entries[key.String()] = &out
	return nil
}

// Delete removes key.
func (m *MemoryKV) Delete(_ context.Context, key cache.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes++
	if m.Fail {
		return ErrKVDown
	}
	delete(m.entries, key.String())
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (m *MemoryKV) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes++
	if m.Fail {
		return ErrKVDown
	}
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

// Entry returns the raw stored entry for key, expired or not.
func (m *MemoryKV) Entry(key cache.Key) (*cache.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key.String()]
	return e, ok
}

// SetFail toggles failure mode.
func (m *MemoryKV) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail = fail
}

// Counts returns the operation counters.
func (m *MemoryKV) Counts() (gets, sets, deletes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Gets, m.Sets, m.Deletes
}
