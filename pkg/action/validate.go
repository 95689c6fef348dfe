package action

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// Reason classifies why a candidate was rejected.
type Reason string

const (
	ReasonUnknownKind   Reason = "unknown_action_kind"
	ReasonMissingField  Reason = "missing_field"
	ReasonWrongType     Reason = "wrong_type"
	ReasonEmptySelector Reason = "empty_selector"
)

// ValidationError names the offending field of a rejected candidate.
type ValidationError struct {
	Field   string `json:"field"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Reason, e.Field, e.Message)
}

func invalid(field string, reason Reason, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// aliases maps kind spellings produced by older generators to canonical kinds.
var aliases = map[string]Kind{
	"goto":           KindNavigate,
	"assert_text":    KindAssertText,
	"assert_visible": KindAssertVisible,
}

// ParseKind resolves a kind name, accepting the snake_case aliases.
func ParseKind(name string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == name {
			return k, true
		}
	}
	k, ok := aliases[name]
	return k, ok
}

// Validate turns one candidate record into a typed Action. It performs no I/O
// and never panics; unknown fields are ignored.
func Validate(candidate map[string]any) (Action, *ValidationError) {
	raw, ok := candidate["action"]
	if !ok || raw == nil {
		return nil, invalid("action", ReasonMissingField, "action kind is required")
	}
	name, ok := raw.(string)
	if !ok {
		return nil, invalid("action", ReasonWrongType, "expected string, got %s", typeName(raw))
	}
	kind, ok := ParseKind(strings.TrimSpace(name))
	if !ok {
		return nil, invalid("action", ReasonUnknownKind, "unknown action kind %q", name)
	}

	opts, verr := readOptions(candidate)
	if verr != nil {
		return nil, verr
	}

	switch kind {
	case KindNavigate:
		u, verr := requireString(candidate, "url")
		if verr != nil {
			return nil, verr
		}
		if strings.TrimSpace(u) == "" {
			return nil, invalid("url", ReasonMissingField, "url must not be empty")
		}
		if _, err := url.Parse(u); err != nil {
			return nil, invalid("url", ReasonWrongType, "not a URL: %v", err)
		}
		return Navigate{Options: opts, URL: u}, nil

	case KindClick:
		sel, verr := requireSelector(candidate)
		if verr != nil {
			return nil, verr
		}
		return Click{Options: opts, Selector: sel}, nil

	case KindFill:
		sel, verr := requireSelector(candidate)
		if verr != nil {
			return nil, verr
		}
		text, verr := requireString(candidate, "text")
		if verr != nil {
			return nil, verr
		}
		return Fill{Options: opts, Selector: sel, Text: text}, nil

	case KindAssertText:
		sel, verr := requireSelector(candidate)
		if verr != nil {
			return nil, verr
		}
		text, verr := requireString(candidate, "text")
		if verr != nil {
			return nil, verr
		}
		return AssertText{Options: opts, Selector: sel, Expected: text}, nil

	case KindAssertVisible:
		sel, verr := requireSelector(candidate)
		if verr != nil {
			return nil, verr
		}
		return AssertVisible{Options: opts, Selector: sel}, nil

	case KindWait:
		_, hasSel := present(candidate, "selector")
		_, hasDur := present(candidate, "durationMs")
		switch {
		case hasSel && hasDur:
			return nil, invalid("durationMs", ReasonWrongType, "wait takes either selector or durationMs, not both")
		case hasSel:
			sel, verr := requireSelector(candidate)
			if verr != nil {
				return nil, verr
			}
			return Wait{Options: opts, Selector: sel}, nil
		case hasDur:
			ms, verr := requireMillis(candidate, "durationMs")
			if verr != nil {
				return nil, verr
			}
			return Wait{Options: opts, Duration: time.Duration(ms) * time.Millisecond}, nil
		default:
			return nil, invalid("selector", ReasonMissingField, "wait requires selector or durationMs")
		}
	}

	// ParseKind only returns kinds handled above.
	return nil, invalid("action", ReasonUnknownKind, "unknown action kind %q", name)
}

func readOptions(candidate map[string]any) (Options, *ValidationError) {
	for _, field := range []string{"timeoutMs", "timeout"} {
		if _, ok := present(candidate, field); ok {
			ms, verr := requireMillis(candidate, field)
			if verr != nil {
				return Options{}, verr
			}
			return Options{TimeoutMs: ms}, nil
		}
	}
	return Options{}, nil
}

func present(candidate map[string]any, field string) (any, bool) {
	v, ok := candidate[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func requireString(candidate map[string]any, field string) (string, *ValidationError) {
	v, ok := present(candidate, field)
	if !ok {
		return "", invalid(field, ReasonMissingField, "%s is required", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(field, ReasonWrongType, "expected string, got %s", typeName(v))
	}
	return s, nil
}

func requireSelector(candidate map[string]any) (string, *ValidationError) {
	sel, verr := requireString(candidate, "selector")
	if verr != nil {
		return "", verr
	}
	if strings.TrimSpace(sel) == "" {
		return "", invalid("selector", ReasonEmptySelector, "selector must not be empty")
	}
	return sel, nil
}

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

func requireMillis(candidate map[string]any, field string) (int64, *ValidationError) {
	v, _ := present(candidate, field)
	n, ok := toMillis(v)
	if !ok {
		return 0, invalid(field, ReasonWrongType, "expected non-negative integer, got %s", typeName(v))
	}
	if n > maxMillis {
		return 0, invalid(field, ReasonWrongType, "%d ms exceeds the maximum of %d", n, maxMillis)
	}
	return n, nil
}

// toMillis accepts the number types produced by encoding/json, yaml.v3 and Go
// literals, rejecting fractions and negatives.
func toMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), n >= 0
	case int32:
		return int64(n), n >= 0
	case int64:
		return n, n >= 0
	case uint:
		return int64(n), n <= math.MaxInt64
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float32:
		return floatMillis(float64(n))
	case float64:
		return floatMillis(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, i >= 0
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatMillis(f)
	}
	return 0, false
}

func floatMillis(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case int, int32, int64, uint, uint32, uint64, float32, float64, json.Number:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
