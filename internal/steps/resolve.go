package steps

import (
	"strings"

	"github.com/djbooking/funnel/internal/domain"
)

// Resolve looks up a dot-separated path such as "address.city" in a payload.
// A missing key or a non-object intermediate value reports found=false.
func Resolve(p domain.Payload, path string) (value any, found bool) {
	var cur any = map[string]any(p)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// hasContent reports whether a resolved value counts as filled in: anything
// except absent, nil, or a string that is empty after trimming.
func hasContent(v any, found bool) bool {
	if !found || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}
