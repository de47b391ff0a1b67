package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mfg-ops/ordrefab/models"
)

// Field names a form field of a manufacturing order
type Field string

const (
	FieldCode           Field = "code"
	FieldQuantity       Field = "quantity"
	FieldStartDate      Field = "startDate"
	FieldEndDate        Field = "endDate"
	FieldProduct        Field = "productId"
	FieldProductionLine Field = "productionLineId"
	FieldStatus         Field = "status"
)

// Fields lists the editable order fields in form order
var Fields = []Field{FieldCode, FieldQuantity, FieldStartDate, FieldEndDate, FieldProduct, FieldProductionLine, FieldStatus}

// Kind classifies a field error
type Kind string

const (
	KindRequired        Kind = "required"
	KindMinLength       Kind = "minlength"
	KindMinValue        Kind = "min"
	KindStartDateInPast Kind = "startDateInPast"
	KindEndDateInPast   Kind = "endDateInPast"
	KindEndBeforeStart  Kind = "endBeforeStart"
	KindConflict        Kind = "conflict"
	KindLocked          Kind = "locked"
)

// FieldError is one rule violation on one field
type FieldError struct {
	Field     Field                 `json:"field"`
	Kind      Kind                  `json:"kind"`
	Param     string                `json:"param,omitempty"`
	Conflicts []models.OrderSummary `json:"conflicts,omitempty"`
}

// Error implements error
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message())
}

// Message renders the violation for display next to the field
func (e FieldError) Message() string {
	switch e.Kind {
	case KindRequired:
		return "is required"
	case KindMinLength:
		return fmt.Sprintf("must be at least %s characters", e.Param)
	case KindMinValue:
		return fmt.Sprintf("must be at least %s", e.Param)
	case KindStartDateInPast:
		return "start date cannot be in the past"
	case KindEndDateInPast:
		return "end date cannot be in the past"
	case KindEndBeforeStart:
		return "end date must not be before start date"
	case KindConflict:
		parts := make([]string, 0, len(e.Conflicts))
		for _, c := range e.Conflicts {
			parts = append(parts, c.String())
		}
		return "production line unavailable, conflicts: " + strings.Join(parts, ", ")
	case KindLocked:
		return "cannot be changed in the current status"
	default:
		return string(e.Kind)
	}
}

// Errors collects field errors per field. The zero value is not usable; use
// make or New.
type Errors map[Field][]FieldError

// New returns an empty error set
func New() Errors {
	return make(Errors)
}

// Add records fe, replacing an existing error of the same kind on the same field
func (e Errors) Add(fe FieldError) {
	list := e[fe.Field]
	for i := range list {
		if list[i].Kind == fe.Kind {
			list[i] = fe
			return
		}
	}
	e[fe.Field] = append(list, fe)
}

// Remove drops errors of the given kind on field, leaving its other errors intact
func (e Errors) Remove(field Field, kind Kind) {
	list := e[field]
	kept := list[:0]
	for _, fe := range list {
		if fe.Kind != kind {
			kept = append(kept, fe)
		}
	}
	if len(kept) == 0 {
		delete(e, field)
		return
	}
	e[field] = kept
}

// RemoveKinds drops every error of the given kinds on every field
func (e Errors) RemoveKinds(kinds ...Kind) {
	for field := range e {
		for _, kind := range kinds {
			e.Remove(field, kind)
		}
	}
}

// Has reports whether field carries an error of kind
func (e Errors) Has(field Field, kind Kind) bool {
	for _, fe := range e[field] {
		if fe.Kind == kind {
			return true
		}
	}
	return false
}

// Get returns the error of kind on field, if any
func (e Errors) Get(field Field, kind Kind) (FieldError, bool) {
	for _, fe := range e[field] {
		if fe.Kind == kind {
			return fe, true
		}
	}
	return FieldError{}, false
}

// Merge adds every error of other into e
func (e Errors) Merge(other Errors) {
	for _, list := range other {
		for _, fe := range list {
			e.Add(fe)
		}
	}
}

// Clone returns an independent copy
func (e Errors) Clone() Errors {
	out := make(Errors, len(e))
	for field, list := range e {
		out[field] = append([]FieldError(nil), list...)
	}
	return out
}

// Empty reports whether there is no error left
func (e Errors) Empty() bool {
	return len(e) == 0
}

// List flattens the errors, sorted by field name
func (e Errors) List() []FieldError {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, string(field))
	}
	sort.Strings(fields)

	var out []FieldError
	for _, field := range fields {
		out = append(out, e[Field(field)]...)
	}
	return out
}

// Error implements error
func (e Errors) Error() string {
	list := e.List()
	msgs := make([]string, 0, len(list))
	for _, fe := range list {
		msgs = append(msgs, fe.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}
