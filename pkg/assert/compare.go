package assert

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Result is one evaluated comparison, before the hard/soft policy applies.
type Result struct {
	Type     string
	Expected string
	Actual   string
	Passed   bool
	Message  string
}

// Equals compares two values. Numbers compare numerically regardless of
// concrete type; structured values compare deeply after JSON normalization.
func Equals(actual, expected any) *Result {
	passed := equalValues(actual, expected)
	msg := fmt.Sprintf("value equals %s", display(expected))
	if !passed {
		msg = fmt.Sprintf("value %s != %s", display(actual), display(expected))
	}
	return &Result{
		Type:     "equals",
		Expected: display(expected),
		Actual:   display(actual),
		Passed:   passed,
		Message:  msg,
	}
}

// NotEquals is the negation of Equals.
func NotEquals(actual, expected any) *Result {
	passed := !equalValues(actual, expected)
	msg := fmt.Sprintf("value does not equal %s", display(expected))
	if !passed {
		msg = fmt.Sprintf("value equals %s (unexpected)", display(expected))
	}
	return &Result{
		Type:     "not_equals",
		Expected: display(expected),
		Actual:   display(actual),
		Passed:   passed,
		Message:  msg,
	}
}

// Contains checks substring containment for strings and element membership
// for lists.
func Contains(actual, expected any) *Result {
	var passed bool
	switch a := actual.(type) {
	case []any:
		for _, item := range a {
			if equalValues(item, expected) {
				passed = true
				break
			}
		}
	default:
		passed = strings.Contains(rawText(actual), rawText(expected))
	}
	msg := fmt.Sprintf("value contains %s", display(expected))
	if !passed {
		msg = fmt.Sprintf("value %s does not contain %s", display(actual), display(expected))
	}
	return &Result{
		Type:     "contains",
		Expected: display(expected),
		Actual:   display(actual),
		Passed:   passed,
		Message:  msg,
	}
}

// Matches checks the value against a regular expression.
func Matches(actual any, pattern string) *Result {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return &Result{
			Type:     "matches",
			Expected: pattern,
			Actual:   display(actual),
			Passed:   false,
			Message:  fmt.Sprintf("invalid pattern /%s/: %v", pattern, err),
		}
	}
	passed := re.MatchString(rawText(actual))
	msg := fmt.Sprintf("value matches /%s/", pattern)
	if !passed {
		msg = fmt.Sprintf("value %s does not match /%s/", display(actual), pattern)
	}
	return &Result{
		Type:     "matches",
		Expected: pattern,
		Actual:   display(actual),
		Passed:   passed,
		Message:  msg,
	}
}

// equalValues compares loosely across the types YAML and JSON produce:
// ints and floats compare numerically, everything structured compares
// deeply after normalization.
func equalValues(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as == bs
		}
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// normalize round-trips a value through JSON so map/slice/number kinds
// compare structurally.
func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// rawText is the form values are matched against: strings stay unquoted,
// everything else takes its JSON form.
func rawText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// display renders values for assertion messages, truncated to keep console
// and trace output readable.
func display(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = "null"
	case string:
		s = strconv.Quote(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprint(val)
		} else {
			s = string(b)
		}
	}
	return truncate(s, 200)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
