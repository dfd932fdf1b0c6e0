package steps

import "github.com/djbooking/funnel/internal/domain"

// Validate sanitizes payload and checks it against the rules of stepID.
// An unknown step yields a single stepId error and an empty normalized
// payload.
func Validate(stepID string, payload any) domain.ValidationResult {
	def, ok := Lookup(stepID)
	if !ok {
		return domain.NewValidationResult(
			[]domain.FieldError{{Field: "stepId", Message: "Unknown step: " + stepID}},
			domain.Payload{},
		)
	}

	normalized := Sanitize(payload)
	return domain.NewValidationResult(def.Check(normalized), normalized)
}
