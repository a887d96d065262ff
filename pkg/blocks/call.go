package blocks

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Param accessors. Block executors read their resolved inputs through
// these; missing or mistyped values fall back to zero values or the given
// default, with coercion matching what YAML documents naturally produce.

// Any returns the raw resolved value for name.
func (c *Call) Any(name string) (any, bool) {
	v, ok := c.Params[name]
	return v, ok
}

// String returns the value of name as a string, or "".
func (c *Call) String(name string) string {
	return c.StringOr(name, "")
}

// StringOr returns the value of name as a string, or def when unset.
func (c *Call) StringOr(name, def string) string {
	v, ok := c.Params[name]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the value of name as an int.
func (c *Call) Int(name string) (int, bool) {
	v, ok := c.Params[name]
	if !ok {
		return 0, false
	}
	return toInt(v)
}

// IntOr returns the value of name as an int, or def.
func (c *Call) IntOr(name string, def int) int {
	if n, ok := c.Int(name); ok {
		return n
	}
	return def
}

// Bool returns the value of name as a bool. Strings "true"/"false" are
// accepted; anything else reports false.
func (c *Call) Bool(name string) bool {
	v, ok := c.Params[name]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), "true")
	default:
		return false
	}
}

// List returns the value of name as a list.
func (c *Call) List(name string) []any {
	v, ok := c.Params[name]
	if !ok {
		return nil
	}
	if list, ok := v.([]any); ok {
		return list
	}
	return nil
}

// Map returns the value of name as a mapping.
func (c *Call) Map(name string) map[string]any {
	v, ok := c.Params[name]
	if !ok {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

// Duration parses the value of name as a duration: either a Go duration
// string ("1.5s") or a bare number of seconds. Returns def when unset or
// unparsable.
func (c *Call) Duration(name string, def time.Duration) time.Duration {
	v, ok := c.Params[name]
	if !ok || v == nil {
		return def
	}
	switch d := v.(type) {
	case string:
		if parsed, err := time.ParseDuration(strings.TrimSpace(d)); err == nil {
			return parsed
		}
		if secs, err := strconv.ParseFloat(strings.TrimSpace(d), 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
		return def
	default:
		if n, ok := toFloat(v); ok {
			return time.Duration(n * float64(time.Second))
		}
		return def
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
