package steps

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djbooking/funnel/internal/domain"
)

type unsupported struct{ X int }

func TestSanitize_NilAndNonObject(t *testing.T) {
	assert.Equal(t, domain.Payload{}, Sanitize(nil))
	assert.Equal(t, domain.Payload{}, Sanitize("just a string"))
	assert.Equal(t, domain.Payload{}, Sanitize([]any{"a"}))

	var nilMap map[string]any
	assert.Equal(t, domain.Payload{}, Sanitize(nilMap))
}

func TestSanitize_Scalars(t *testing.T) {
	in := map[string]any{
		"name":      "  Jan  ",
		"blank":     "   ",
		"guests":    float64(120),
		"confirmed": true,
		"notes":     nil,
	}

	out := Sanitize(in)

	assert.Equal(t, "Jan", out["name"])
	assert.Equal(t, "", out["blank"], "all-whitespace strings become empty, not dropped")
	assert.Equal(t, float64(120), out["guests"])
	assert.Equal(t, true, out["confirmed"])
	v, ok := out["notes"]
	assert.True(t, ok, "nil values are kept")
	assert.Nil(t, v)
}

func TestSanitize_DatesBecomeISOStrings(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	d := time.Date(2026, 6, 13, 20, 30, 0, 0, loc)

	out := Sanitize(map[string]any{"eventDate": d, "ptr": &d})

	assert.Equal(t, "2026-06-13T18:30:00.000Z", out["eventDate"])
	assert.Equal(t, "2026-06-13T18:30:00.000Z", out["ptr"])
}

func TestSanitize_DropsUnsupportedValues(t *testing.T) {
	var nilTime *time.Time
	in := map[string]any{
		"keep":   "x",
		"fn":     func() {},
		"struct": unsupported{X: 1},
		"ch":     make(chan int),
		"nilPtr": nilTime,
		"list":   []any{"a", func() {}, nil, " b "},
	}

	out := Sanitize(in)

	assert.Equal(t, "x", out["keep"])
	assert.NotContains(t, out, "fn")
	assert.NotContains(t, out, "struct")
	assert.NotContains(t, out, "ch")
	assert.NotContains(t, out, "nilPtr")
	assert.Equal(t, []any{"a", nil, "b"}, out["list"], "dropped elements shorten the slice, nil stays")
}

func TestSanitize_Nested(t *testing.T) {
	in := map[string]any{
		"address": map[string]any{
			"city":   "  Utrecht ",
			"extra":  unsupported{},
			"coords": []any{float64(52.09), float64(5.12)},
		},
	}

	out := Sanitize(in)

	addr, ok := out["address"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Utrecht", addr["city"])
	assert.NotContains(t, addr, "extra")
	assert.Equal(t, []any{float64(52.09), float64(5.12)}, addr["coords"])
}

func TestSanitize_KeepsJSONNumbers(t *testing.T) {
	out := Sanitize(map[string]any{"guests": json.Number("150")})
	assert.Equal(t, json.Number("150"), out["guests"])
}

func TestSanitize_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"name": "  Jan ", "fn": func() {}}
	_ = Sanitize(in)
	assert.Equal(t, "  Jan ", in["name"])
	assert.Contains(t, in, "fn")
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []map[string]any{
		{},
		{"a": " x ", "b": float64(1), "c": false, "d": nil},
		{"date": time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)},
		{"list": []any{" a ", []any{" b ", nil}, map[string]any{"c": " d "}}},
		{"nested": map[string]any{"deeper": map[string]any{"s": "\tv\n", "when": time.Now()}}},
	}

	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(map[string]any(once))
		assert.Equal(t, once, twice)
	}
}
