// Package vars implements ${name} / ${name.path} placeholder resolution
// against variable scopes. Resolution is pure: scopes are read, never
// written, and unresolvable placeholders pass through unchanged.
package vars

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderRe matches ${ident} and ${ident.seg.seg} placeholders. Path
// segments after the first may be numeric (array indices).
var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\}`)

// Resolve substitutes every ${...} placeholder in text. The leading path
// segment is looked up in the scopes in order (first scope wins); remaining
// segments traverse nested mappings and array indices. Placeholders whose
// lookup fails are left verbatim. Resolve never returns an error.
func Resolve(text string, scopes ...map[string]any) string {
	if !strings.Contains(text, "${") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		path := match[2 : len(match)-1]
		val, ok := Lookup(path, scopes...)
		if !ok {
			return match
		}
		return Stringify(val)
	})
}

// ResolveValue applies Resolve recursively through nested mappings and
// lists, resolving string leaves and leaving other leaves untouched.
func ResolveValue(v any, scopes ...map[string]any) any {
	switch val := v.(type) {
	case string:
		return Resolve(val, scopes...)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = ResolveValue(item, scopes...)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ResolveValue(item, scopes...)
		}
		return out
	default:
		return v
	}
}

// Lookup resolves a dotted path against the scopes. The leading segment
// selects a binding from the first scope that contains it; remaining
// segments traverse nested values via Traverse.
func Lookup(path string, scopes ...map[string]any) (any, bool) {
	segments := strings.Split(path, ".")
	head := segments[0]

	for _, scope := range scopes {
		if scope == nil {
			continue
		}
		val, ok := scope[head]
		if !ok {
			continue
		}
		if len(segments) == 1 {
			return val, true
		}
		return Traverse(val, segments[1:])
	}
	return nil, false
}

// Traverse walks a value along path segments. Mappings are indexed by key,
// lists by numeric segment. Traversal stops with ok=false when a segment is
// absent or the current value is not traversable.
func Traverse(root any, segments []string) (any, bool) {
	current := root
	for _, seg := range segments {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case map[any]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Stringify renders a value for placeholder substitution: strings pass
// through, scalars use their natural text form, structured values are
// JSON-encoded.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
