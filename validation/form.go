package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mfg-ops/ordrefab/models"
)

// OrderInput is the operator-entered content of the order form
type OrderInput struct {
	Code             string      `json:"code" validate:"required,min=3"`
	Quantity         *int        `json:"quantity" validate:"required,min=1"`
	StartDate        models.Date `json:"startDate" validate:"required"`
	EndDate          models.Date `json:"endDate" validate:"required"`
	ProductID        uint        `json:"productId" validate:"required"`
	ProductionLineID uint        `json:"productionLineId" validate:"required"`
}

// InputFromOrder prefills the form from an existing order
func InputFromOrder(o models.ManufacturingOrder) OrderInput {
	qty := o.Quantity
	return OrderInput{
		Code:             o.Code,
		Quantity:         &qty,
		StartDate:        o.StartDate,
		EndDate:          o.EndDate,
		ProductID:        o.ProductID,
		ProductionLineID: o.ProductionLineID,
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		// a zero Date is reported by "required" like an empty string
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			d, ok := field.Interface().(models.Date)
			if !ok || d.IsZero() {
				return nil
			}
			return d.String()
		}, models.Date{})
		validate = v
	})
	return validate
}

// CheckInput applies the required, min-length and min-value rules
func CheckInput(in OrderInput) Errors {
	errs := New()
	err := formValidator().Struct(in)
	if err == nil {
		return errs
	}

	// Struct only fails with InvalidValidationError for non-struct input
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs
	}
	for _, fe := range verrs {
		errs.Add(fromValidator(fe))
	}
	return errs
}

func fromValidator(fe validator.FieldError) FieldError {
	out := FieldError{Field: Field(fe.Field()), Param: fe.Param()}
	switch fe.Tag() {
	case "required":
		out.Kind = KindRequired
	case "min":
		if fe.Kind() == reflect.String {
			out.Kind = KindMinLength
		} else {
			out.Kind = KindMinValue
		}
	default:
		out.Kind = Kind(fe.Tag())
	}
	return out
}

// Check runs the field rules and the date rules together. Conflict and locked
// errors are not produced here.
func Check(in OrderInput, today models.Date, rules DateRules) Errors {
	errs := CheckInput(in)
	for _, fe := range CheckDates(in.StartDate, in.EndDate, today, rules) {
		errs.Add(fe)
	}
	return errs
}
