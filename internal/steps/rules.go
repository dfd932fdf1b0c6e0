package steps

import "github.com/djbooking/funnel/internal/domain"

// Rule checks a sanitized payload and returns the errors it finds.
type Rule interface {
	Apply(p domain.Payload) []domain.FieldError
}

// Required fails when the field at Field has no content.
type Required struct {
	Field   string
	Message string
}

// Apply implements Rule.
func (r Required) Apply(p domain.Payload) []domain.FieldError {
	if hasContent(Resolve(p, r.Field)) {
		return nil
	}
	return []domain.FieldError{{Field: r.Field, Message: r.Message}}
}

// FieldCheck runs Check on the value at Field. Empty values are skipped and
// left to the Required rule for the same field.
type FieldCheck struct {
	Field   string
	Message string
	Check   func(v any) bool
}

// Apply implements Rule.
func (c FieldCheck) Apply(p domain.Payload) []domain.FieldError {
	v, found := Resolve(p, c.Field)
	if !hasContent(v, found) || c.Check(v) {
		return nil
	}
	return []domain.FieldError{{Field: c.Field, Message: c.Message}}
}

// Definition is the rule set of one funnel step. Required rules always run
// before Validators.
type Definition struct {
	ID         string
	Required   []Required
	Validators []Rule
}

// RequiredFields lists the required field paths in declaration order.
func (d Definition) RequiredFields() []string {
	fields := make([]string, len(d.Required))
	for i, r := range d.Required {
		fields[i] = r.Field
	}
	return fields
}

// Check applies every rule of the definition without short-circuiting.
func (d Definition) Check(p domain.Payload) []domain.FieldError {
	errs := make([]domain.FieldError, 0)
	for _, r := range d.Required {
		errs = append(errs, r.Apply(p)...)
	}
	for _, v := range d.Validators {
		errs = append(errs, v.Apply(p)...)
	}
	return errs
}

var definitions = []Definition{
	{
		ID: domain.StepEventDetails,
		Required: []Required{
			{Field: "eventType", Message: "Kies een type evenement."},
			{Field: "eventDate", Message: "Selecteer een datum."},
		},
		Validators: []Rule{
			FieldCheck{Field: "eventDate", Message: "Ongeldige datum.", Check: IsDate},
		},
	},
	{
		ID: domain.StepPackageSelection,
		Required: []Required{
			{Field: "packageId", Message: "Kies een pakket."},
		},
	},
	{
		ID: domain.StepContactDetails,
		Required: []Required{
			{Field: "name", Message: "Vul je naam in."},
			{Field: "email", Message: "Vul je e-mailadres in."},
			{Field: "phone", Message: "Vul je telefoonnummer in."},
		},
		Validators: []Rule{
			FieldCheck{Field: "email", Message: "Voer een geldig e-mailadres in.", Check: IsEmail},
			FieldCheck{Field: "phone", Message: "Voer een geldig telefoonnummer in.", Check: IsPhone},
		},
	},
	{
		ID: domain.StepReview,
		Required: []Required{
			{Field: "confirmation", Message: "Bevestig je aanvraag."},
		},
		Validators: []Rule{
			FieldCheck{Field: "confirmation", Message: "Bevestig dat de gegevens kloppen.", Check: IsTrue},
		},
	},
}

// Lookup returns the definition for a step id.
func Lookup(stepID string) (Definition, bool) {
	for _, d := range definitions {
		if d.ID == stepID {
			return d, true
		}
	}
	return Definition{}, false
}

// Definitions returns all step definitions in funnel order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}
