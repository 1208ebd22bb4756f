package spec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Separator joins list values.
const Separator = ", "

const metaobjectGIDPrefix = "gid://shopify/Metaobject/"

// Namespaces are the metafield namespaces that carry car attributes.
var Namespaces = map[string]bool{
	"custom":  true,
	"spec":    true,
	"specs":   true,
	"car":     true,
	"vehicle": true,
	"details": true,
}

var trailingZeroFraction = regexp.MustCompile(`^(-?\d+)\.0+$`)

// Extract flattens metafields into a SpecMap keyed by normalized metafield
// key. Metafields outside the recognized namespaces are ignored. When two
// metafields (or flattened reference fields) share a key, the first
// non-empty value is kept.
func Extract(metafields []Metafield) SpecMap {
	out := make(SpecMap)
	for _, mf := range metafields {
		if !Namespaces[strings.ToLower(mf.Namespace)] {
			continue
		}
		key := NormalizeKey(mf.Key)
		if key == "" {
			continue
		}

		out.SetIfAbsent(key, Value(mf))

		if mf.Reference != nil {
			flattenFields(out, *mf.Reference)
		}
		for _, ref := range mf.References {
			flattenFields(out, ref)
		}
	}
	return out
}

// flattenFields copies a metaobject's fields into out without overriding.
func flattenFields(out SpecMap, obj Metaobject) {
	for _, f := range obj.Fields {
		key := NormalizeKey(f.Key)
		if key == "" || isReferenceID(f.Value) {
			continue
		}
		out.SetIfAbsent(key, f.Value)
	}
}

// Value resolves the display value of a single metafield. It returns ""
// when the metafield holds nothing displayable.
func Value(mf Metafield) string {
	// (a) reference list
	if mf.Kind == KindReferenceList && len(mf.References) > 0 {
		labels := make([]string, 0, len(mf.References))
		for _, ref := range mf.References {
			if l := ref.Label(); l != "" {
				labels = append(labels, l)
			}
		}
		return strings.Join(labels, Separator)
	}

	raw := strings.TrimSpace(mf.Value)

	// (b) JSON-encoded list
	if strings.HasPrefix(raw, "[") {
		if joined, ok := joinJSONList(raw); ok {
			return joined
		}
	}

	// (c) numeric with an empty fractional part
	if isNumericType(mf.Type) {
		if m := trailingZeroFraction.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	}

	// (d) single reference
	if mf.Kind == KindReference && mf.Reference != nil {
		return mf.Reference.Label()
	}
	if isReferenceID(raw) {
		return ""
	}

	// (e) raw value
	return raw
}

// joinJSONList parses raw as a JSON list and joins its scalar elements.
// A list made only of unresolved metaobject ids yields "" so that the
// value is treated as absent. ok is false when raw is not a JSON list.
func joinJSONList(raw string) (string, bool) {
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return "", false
	}

	parts := make([]string, 0, len(items))
	refs := 0
	for _, item := range items {
		s := scalarString(item)
		if s == "" {
			continue
		}
		if isReferenceID(s) {
			refs++
			continue
		}
		parts = append(parts, s)
	}
	if refs > 0 && len(parts) == 0 {
		return "", true
	}
	return strings.Join(parts, Separator), true
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		// nested objects and lists are not displayable scalars
		return ""
	}
}

func isNumericType(t string) bool {
	switch strings.ToLower(t) {
	case "number_integer", "number_decimal", "rating":
		return true
	}
	return false
}

func isReferenceID(s string) bool {
	return strings.HasPrefix(s, metaobjectGIDPrefix)
}

// String renders a metafield for debug logs.
func (mf Metafield) String() string {
	return fmt.Sprintf("%s.%s(%s)", mf.Namespace, mf.Key, mf.Kind)
}
