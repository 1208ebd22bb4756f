package cache

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryEntries bounds the memory tier when no size is given.
const DefaultMemoryEntries = 512

// Memory is the per-process tier. Entries are kept after they expire so
// that a stale copy can still be served when every other source fails;
// the LRU bound evicts them eventually.
type Memory struct {
	entries *lru.Cache[string, *Entry]
}

// NewMemory creates a memory tier holding at most size entries.
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	entries, err := lru.NewWithEvict[string, *Entry](size, func(string, *Entry) {
		MemoryEntries.Dec()
	})
	if err != nil {
		return nil, fmt.Errorf("create memory tier: %w", err)
	}
	return &Memory{entries: entries}, nil
}

// Get returns the entry for key, expired or not.
func (m *Memory) Get(key string) (*Entry, bool) {
	return m.entries.Get(key)
}

// Fresh returns the entry for key only if it has not expired.
func (m *Memory) Fresh(key string) (*Entry, bool) {
	e, ok := m.entries.Get(key)
	if !ok || e.IsExpired() {
		return nil, false
	}
	return e, true
}

// Set stores entry under key.
func (m *Memory) Set(key string, entry *Entry) {
	if existed, _ := m.entries.ContainsOrAdd(key, entry); existed {
		m.entries.Add(key, entry)
		return
	}
	MemoryEntries.Inc()
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	m.entries.Remove(key)
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed.
func (m *Memory) DeletePrefix(prefix string) int {
	n := 0
	for _, k := range m.entries.Keys() {
		if strings.HasPrefix(k, prefix) {
			m.entries.Remove(k)
			n++
		}
	}
	return n
}

// Purge removes every entry.
func (m *Memory) Purge() {
	m.entries.Purge()
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	return m.entries.Len()
}
