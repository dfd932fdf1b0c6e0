// Package steps holds the booking funnel's step rule table and the payload
// validator built on it.
package steps

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/djbooking/funnel/internal/domain"
)

// ISOTimeLayout is the layout dates are normalized to: millisecond precision
// in UTC, e.g. 2026-06-13T18:30:00.000Z.
const ISOTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Sanitize normalizes a decoded payload. Strings are trimmed, numbers and
// booleans pass through, dates become ISO-8601 strings, and unsupported
// values are dropped: omitted from maps and removed from slices. Nil is kept
// inside containers. A nil or non-object payload sanitizes to an empty map.
//
// Sanitize is idempotent.
func Sanitize(payload any) domain.Payload {
	m, ok := payload.(map[string]any)
	if !ok || m == nil {
		return domain.Payload{}
	}
	return sanitizeMap(m)
}

func sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sv, keep := sanitizeValue(v); keep {
			out[k] = sv
		}
	}
	return out
}

func sanitizeValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case string:
		return strings.TrimSpace(t), true
	case bool, json.Number,
		float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return t, true
	case time.Time:
		return t.UTC().Format(ISOTimeLayout), true
	case *time.Time:
		if t == nil {
			return nil, false
		}
		return t.UTC().Format(ISOTimeLayout), true
	case []any:
		out := make([]any, 0, len(t))
		for _, el := range t {
			if sv, keep := sanitizeValue(el); keep {
				out = append(out, sv)
			}
		}
		return out, true
	case map[string]any:
		return sanitizeMap(t), true
	default:
		return nil, false
	}
}
