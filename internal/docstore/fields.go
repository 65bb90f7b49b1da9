package docstore

import (
	"encoding/json"
	"maps"
	"reflect"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"lifelog/internal/core"
)

// Fields is the field map of a document.
type Fields map[string]any

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	return maps.Clone(f)
}

// Overlay returns a copy of f with every key of patch written over it.
func (f Fields) Overlay(patch Fields) Fields {
	out := f.Clone()
	maps.Copy(out, patch)
	return out
}

// Resolve returns a copy of f with ServerTimestamp sentinels replaced by now.
func (f Fields) Resolve(now time.Time) Fields {
	out := f.Clone()
	for k, v := range out {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now
		}
	}
	return out
}

// String returns the string stored under key, or "".
func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Bool returns the boolean stored under key.
func (f Fields) Bool(key string) bool {
	v, _ := f[key].(bool)
	return v
}

// Time coerces the value under key into a time. Unknown shapes yield the zero
// time.
func (f Fields) Time(key string) time.Time {
	return core.CoerceDate(f[key])
}

// Decimal reads an amount stored as a decimal, a numeric string or a number.
func (f Fields) Decimal(key string) decimal.Decimal {
	switch v := f[key].(type) {
	case decimal.Decimal:
		return v
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	default:
		return decimal.Zero
	}
}

// Strings reads a list of strings. Non-string elements are skipped.
func (f Fields) Strings(key string) []string {
	switch v := f[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// equalValue compares a stored value with a query value, treating the numeric
// representations produced by the backends as interchangeable.
func equalValue(stored, want any) bool {
	if a, ok := stored.(string); ok {
		b, ok := want.(string)
		return ok && a == b
	}
	if a, ok := number(stored); ok {
		b, ok := number(want)
		return ok && a == b
	}
	return reflect.DeepEqual(stored, want)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
