package domain

// FieldError reports a single failed rule for a payload field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of validating one step payload.
type ValidationResult struct {
	Valid             bool         `json:"valid"`
	Errors            []FieldError `json:"errors"`
	NormalizedPayload Payload      `json:"normalizedPayload"`
}

// NewValidationResult builds a result whose Valid flag follows the error list.
func NewValidationResult(errs []FieldError, normalized Payload) ValidationResult {
	if errs == nil {
		errs = []FieldError{}
	}
	if normalized == nil {
		normalized = Payload{}
	}
	return ValidationResult{
		Valid:             len(errs) == 0,
		Errors:            errs,
		NormalizedPayload: normalized,
	}
}

// HasField reports whether any error targets the given field.
func (r ValidationResult) HasField(field string) bool {
	for _, e := range r.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}
