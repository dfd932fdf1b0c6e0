package domain

import (
	"strings"
	"time"
)

// Step identifiers of the booking funnel, in funnel order.
const (
	StepEventDetails     = "event-details"
	StepPackageSelection = "package-selection"
	StepContactDetails   = "contact-details"
	StepReview           = "review"
)

// Payload is a loosely typed step payload as decoded from JSON. Values are
// string, float64, bool, nil, Payload-compatible maps or []any.
type Payload = map[string]any

// StepProgress is the stored progress of one step within one booking flow.
// There is at most one StepProgress per (FlowID, StepID).
type StepProgress struct {
	FlowID     string    `json:"flowId"`
	StepID     string    `json:"stepId"`
	IsComplete bool      `json:"isComplete"`
	Payload    Payload   `json:"payload"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Key returns the composite identity of the record.
func (p StepProgress) Key() string {
	return ProgressKey(p.FlowID, p.StepID)
}

// ProgressKey joins a flow and step id into the "<flowId>:<stepId>" key used by
// keyed stores.
func ProgressKey(flowID, stepID string) string {
	return flowID + ":" + stepID
}

// NormalizeID trims surrounding whitespace from a flow or step id.
func NormalizeID(id string) string {
	return strings.TrimSpace(id)
}

// ClonePayload returns a deep copy of p. Nested maps and slices are copied;
// scalar values are shared.
func ClonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return ClonePayload(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
