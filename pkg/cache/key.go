package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Kind names a catalog query.
type Kind string

const (
	KindAllCars     Kind = "all-cars"
	KindHomepage    Kind = "homepage-cars"
	KindBrandCounts Kind = "brand-counts"
	KindCarSpecs    Kind = "car-specs"
	KindCar         Kind = "car"
)

// keyVersion is bumped whenever the cached payload shape changes.
const keyVersion = "v1"

// maxInlineHandles is the longest handle list kept verbatim in a key.
const maxInlineHandles = 200

// Key identifies a cached catalog payload.
type Key struct {
	// Kind is the query kind
	Kind Kind

	// Store identifies the upstream shop (e.g. "dealer.myshopify.com")
	Store string

	// Handles scopes handle-keyed lookups; order and duplicates do not matter
	Handles []string
}

// String generates a deterministic cache key string.
// Format: cache:<kind>:v1:<store>[:<handles>]
//
// Example:
//
//	cache:car-specs:v1:dealer.myshopify.com:civic-2020,vios-2018
func (k Key) String() string {
	parts := []string{"cache", string(k.Kind), keyVersion, strings.ToLower(strings.TrimSpace(k.Store))}
	if suffix := k.handleSuffix(); suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, ":")
}

// HandlePrefix is the key prefix shared by every handle-keyed entry of
// kind for store.
func HandlePrefix(kind Kind, store string) string {
	return Key{Kind: kind, Store: store}.String() + ":"
}

// FileName returns the local-disk file name for the key.
func (k Key) FileName() string {
	name := string(k.Kind)
	if len(k.Handles) > 0 {
		name += "-" + digest(strings.Join(CanonicalHandles(k.Handles), ","))
	}
	return name + ".json"
}

func (k Key) handleSuffix() string {
	if len(k.Handles) == 0 {
		return ""
	}
	joined := strings.Join(CanonicalHandles(k.Handles), ",")
	if len(joined) > maxInlineHandles {
		return "sha256=" + digest(joined)
	}
	return joined
}

// digestLen is the number of hex characters kept from a handle digest.
const digestLen = 16

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:digestLen]
}

// CanonicalHandles trims, lowercases, deduplicates and sorts handles.
// Empty handles are dropped.
func CanonicalHandles(handles []string) []string {
	seen := make(map[string]struct{}, len(handles))
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// IsCanonical reports whether handles is already in canonical form.
func IsCanonical(handles []string) bool {
	canonical := CanonicalHandles(handles)
	if len(canonical) != len(handles) {
		return false
	}
	for i := range handles {
		if handles[i] != canonical[i] {
			return false
		}
	}
	return true
}
