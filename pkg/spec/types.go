// Package spec turns the metafields and free text attached to a car listing
// into one flat, normalized set of attributes.
package spec

import (
	"encoding/json"
	"sort"
	"strings"
)

// Kind tags the shape of a metafield value.
type Kind int

const (
	// KindScalar is a plain value (string, number, JSON-encoded list).
	KindScalar Kind = iota

	// KindReference points at a single metaobject.
	KindReference

	// KindReferenceList points at a list of metaobjects.
	KindReferenceList
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindReference:
		return "reference"
	case KindReferenceList:
		return "reference_list"
	default:
		return "scalar"
	}
}

// MetaobjectField is one key/value pair of a metaobject.
type MetaobjectField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metaobject is a structured record a metafield may reference.
type Metaobject struct {
	ID     string            `json:"id,omitempty"`
	Handle string            `json:"handle,omitempty"`
	Type   string            `json:"type,omitempty"`
	Fields []MetaobjectField `json:"fields,omitempty"`
}

// labelFields are checked in order when a reference is displayed.
var labelFields = []string{"label", "name", "title", "value"}

// Label returns the display value of the metaobject.
func (m Metaobject) Label() string {
	for _, name := range labelFields {
		if v := strings.TrimSpace(m.Field(name)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(m.Handle)
}

// Field returns the value of the named field, or "".
func (m Metaobject) Field(key string) string {
	for _, f := range m.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// Metafield is a namespaced attribute attached to a product or variant.
// Exactly one of Value, Reference or References is meaningful, as told by Kind.
type Metafield struct {
	Namespace  string       `json:"namespace"`
	Key        string       `json:"key"`
	Type       string       `json:"type,omitempty"`
	Value      string       `json:"value,omitempty"`
	Kind       Kind         `json:"kind"`
	Reference  *Metaobject  `json:"reference,omitempty"`
	References []Metaobject `json:"references,omitempty"`
}

// SpecMap maps attribute names to display-ready values.
// A present key never holds an empty string.
type SpecMap map[string]string

// Set stores the trimmed value under key. Empty values are dropped and
// an existing entry for key is removed.
func (m SpecMap) Set(key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		delete(m, key)
		return
	}
	m[key] = value
}

// SetIfAbsent stores value only when key has no value yet.
// It reports whether the value was stored.
func (m SpecMap) SetIfAbsent(key, value string) bool {
	if _, ok := m[key]; ok {
		return false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	m[key] = value
	return true
}

// Get returns the value for key and whether it is present.
func (m SpecMap) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Clone returns a copy of the map.
func (m SpecMap) Clone() SpecMap {
	out := make(SpecMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the keys in sorted order.
func (m SpecMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnmarshalJSON decodes a JSON object, dropping null and empty values so
// that the non-empty invariant also holds for data read back from a cache.
func (m *SpecMap) UnmarshalJSON(data []byte) error {
	var raw map[string]*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(SpecMap, len(raw))
	for k, v := range raw {
		if v != nil {
			out.Set(k, *v)
		}
	}
	*m = out
	return nil
}
