package steps

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	nonDigitPattern = regexp.MustCompile(`\D`)
)

const minPhoneDigits = 6

// IsDate accepts a non-zero time.Time or a YYYY-MM-DD string naming a real
// calendar day.
func IsDate(v any) bool {
	switch t := v.(type) {
	case time.Time:
		return !t.IsZero()
	case *time.Time:
		return t != nil && !t.IsZero()
	case string:
		if !datePattern.MatchString(t) {
			return false
		}
		_, err := time.Parse(time.DateOnly, t)
		return err == nil
	default:
		return false
	}
}

// IsEmail checks the trimmed string form of v against a loose address shape.
func IsEmail(v any) bool {
	s, ok := stringValue(v)
	if !ok {
		return false
	}
	return emailPattern.MatchString(s)
}

// IsPhone accepts any value whose string form carries at least six digits.
func IsPhone(v any) bool {
	s, ok := stringValue(v)
	if !ok {
		return false
	}
	return len(nonDigitPattern.ReplaceAllString(s, "")) >= minPhoneDigits
}

// IsTrue accepts only the boolean true.
func IsTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
