package validation

import "github.com/mfg-ops/ordrefab/models"

// CheckStartDate rejects a start date earlier than today
func CheckStartDate(start, today models.Date) *FieldError {
	if start.IsZero() || !start.Before(today) {
		return nil
	}
	return &FieldError{Field: FieldStartDate, Kind: KindStartDateInPast, Param: today.String()}
}

// CheckEndDate rejects an end date earlier than today
func CheckEndDate(end, today models.Date) *FieldError {
	if end.IsZero() || !end.Before(today) {
		return nil
	}
	return &FieldError{Field: FieldEndDate, Kind: KindEndDateInPast, Param: today.String()}
}

// CheckRange rejects an end date earlier than the start date
func CheckRange(start, end models.Date) *FieldError {
	if start.IsZero() || end.IsZero() || !end.Before(start) {
		return nil
	}
	return &FieldError{Field: FieldEndDate, Kind: KindEndBeforeStart, Param: start.String()}
}

// DateRules selects which past-date checks apply. The range check always applies.
type DateRules struct {
	StartNotInPast bool
	EndNotInPast   bool
}

// CheckDates runs the date rules over a window and returns the violations
func CheckDates(start, end, today models.Date, rules DateRules) []FieldError {
	var out []FieldError
	if rules.StartNotInPast {
		if fe := CheckStartDate(start, today); fe != nil {
			out = append(out, *fe)
		}
	}
	if rules.EndNotInPast {
		if fe := CheckEndDate(end, today); fe != nil {
			out = append(out, *fe)
		}
	}
	if fe := CheckRange(start, end); fe != nil {
		out = append(out, *fe)
	}
	return out
}
