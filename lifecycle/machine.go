// Package lifecycle drives manufacturing orders through their status machine
package lifecycle

import (
	"github.com/mfg-ops/ordrefab/models"
	"github.com/mfg-ops/ordrefab/validation"
)

// Trigger is what causes a transition
type Trigger string

const (
	TriggerAuto   Trigger = "auto"
	TriggerStart  Trigger = "start"
	TriggerCancel Trigger = "cancel"
)

type edge struct {
	from    models.Status
	to      models.Status
	trigger Trigger
}

var transitions = map[edge]bool{
	{models.StatusPending, models.StatusInProgress, TriggerAuto}:     true,
	{models.StatusPending, models.StatusInProgress, TriggerStart}:    true,
	{models.StatusInProgress, models.StatusFinished, TriggerAuto}:    true,
	{models.StatusPending, models.StatusCancelled, TriggerCancel}:    true,
	{models.StatusInProgress, models.StatusCancelled, TriggerCancel}: true,
}

// CanTransition reports whether the machine has an edge from -> to for trigger
func CanTransition(from, to models.Status, trigger Trigger) bool {
	return transitions[edge{from, to, trigger}]
}

// AutoTarget returns the status the sweep should move o to today, if any.
// At most one step is taken per call.
func AutoTarget(o models.ManufacturingOrder, today models.Date) (models.Status, bool) {
	switch o.Status {
	case models.StatusPending:
		if !o.StartDate.IsZero() && !o.StartDate.After(today) {
			return models.StatusInProgress, true
		}
	case models.StatusInProgress:
		if !o.EndDate.IsZero() && !o.EndDate.After(today) {
			return models.StatusFinished, true
		}
	}
	return "", false
}

var editable = map[models.Status]map[validation.Field]bool{
	models.StatusPending: {
		validation.FieldCode:           true,
		validation.FieldQuantity:       true,
		validation.FieldStartDate:      true,
		validation.FieldEndDate:        true,
		validation.FieldProduct:        true,
		validation.FieldProductionLine: true,
		validation.FieldStatus:         true,
	},
	models.StatusInProgress: {
		validation.FieldQuantity: true,
		validation.FieldEndDate:  true,
	},
}

// Editable reports whether field may change while the order is in status
func Editable(status models.Status, field validation.Field) bool {
	return editable[status][field]
}

// Frozen reports whether no field at all may change
func Frozen(status models.Status) bool {
	return len(editable[status]) == 0
}

// LockedFields lists the fields that may not change in status
func LockedFields(status models.Status) []validation.Field {
	var out []validation.Field
	for _, f := range validation.Fields {
		if !Editable(status, f) {
			out = append(out, f)
		}
	}
	return out
}

// LockedChanges returns a locked error for every field req would change that
// the status of current does not allow
func LockedChanges(current models.ManufacturingOrder, req models.UpdateOrderRequest) validation.Errors {
	errs := validation.New()
	lock := func(f validation.Field, changed bool) {
		if changed && !Editable(current.Status, f) {
			errs.Add(validation.FieldError{Field: f, Kind: validation.KindLocked, Param: string(current.Status)})
		}
	}

	lock(validation.FieldCode, req.Code != nil && *req.Code != current.Code)
	lock(validation.FieldStatus, req.Status != nil && *req.Status != current.Status)
	lock(validation.FieldQuantity, req.Quantity != nil && *req.Quantity != current.Quantity)
	lock(validation.FieldStartDate, req.StartDate != nil && !req.StartDate.Equal(current.StartDate))
	lock(validation.FieldEndDate, req.EndDate != nil && !req.EndDate.Equal(current.EndDate))
	lock(validation.FieldProduct, req.ProductID != nil && *req.ProductID != current.ProductID)
	lock(validation.FieldProductionLine, req.ProductionLineID != nil && *req.ProductionLineID != current.ProductionLineID)
	return errs
}
