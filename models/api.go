package models

import (
	"errors"
	"fmt"
)

// CreateOrderRequest is the body of POST /api/v1/orders
type CreateOrderRequest struct {
	Code             string `json:"code" binding:"required,min=3"`
	Quantity         int    `json:"quantity" binding:"required,gt=0"`
	StartDate        Date   `json:"startDate"`
	EndDate          Date   `json:"endDate"`
	ProductID        uint   `json:"productId" binding:"required"`
	ProductionLineID uint   `json:"productionLineId" binding:"required"`
	OwnerID          uint   `json:"ownerId" binding:"required"`
}

// UpdateOrderRequest is the body of PUT /api/v1/orders/:id. Only non-nil
// fields are applied. There is deliberately no owner field.
type UpdateOrderRequest struct {
	Code             *string `json:"code,omitempty" binding:"omitempty,min=3"`
	Status           *Status `json:"status,omitempty"`
	Quantity         *int    `json:"quantity,omitempty" binding:"omitempty,gt=0"`
	StartDate        *Date   `json:"startDate,omitempty"`
	EndDate          *Date   `json:"endDate,omitempty"`
	ProductID        *uint   `json:"productId,omitempty"`
	ProductionLineID *uint   `json:"productionLineId,omitempty"`
}

// Empty reports whether the request carries no change at all
func (r UpdateOrderRequest) Empty() bool {
	return r.Code == nil && r.Status == nil && r.Quantity == nil && r.StartDate == nil &&
		r.EndDate == nil && r.ProductID == nil && r.ProductionLineID == nil
}

// StatusPatch builds an update that touches the status only
func StatusPatch(status Status) UpdateOrderRequest {
	return UpdateOrderRequest{Status: &status}
}

// AvailabilityQuery asks whether a line is free over a window
type AvailabilityQuery struct {
	LineID         uint
	StartDate      Date
	EndDate        Date
	ExcludeOrderID *uint
}

// Ready reports whether the query is complete enough to be sent
func (q AvailabilityQuery) Ready() bool {
	return q.LineID != 0 && !q.StartDate.IsZero() && !q.EndDate.IsZero() && !q.EndDate.Before(q.StartDate)
}

// Same reports whether two queries ask the same question
func (q AvailabilityQuery) Same(other AvailabilityQuery) bool {
	if q.LineID != other.LineID || !q.StartDate.Equal(other.StartDate) || !q.EndDate.Equal(other.EndDate) {
		return false
	}
	switch {
	case q.ExcludeOrderID == nil && other.ExcludeOrderID == nil:
		return true
	case q.ExcludeOrderID == nil || other.ExcludeOrderID == nil:
		return false
	default:
		return *q.ExcludeOrderID == *other.ExcludeOrderID
	}
}

// AvailabilityResult is the answer to an AvailabilityQuery
type AvailabilityResult struct {
	Available         bool           `json:"available"`
	ConflictingOrders []OrderSummary `json:"conflictingOrders"`
}

// CancelResponse is the body returned by PUT /orders/:id/cancel
type CancelResponse struct {
	Success bool                `json:"success"`
	Order   *ManufacturingOrder `json:"order,omitempty"`
	Message string              `json:"message,omitempty"`
}

// StartOnDateResponse is the body returned by PUT /orders/:id/start-on-date
type StartOnDateResponse struct {
	Success bool                `json:"success"`
	Order   *ManufacturingOrder `json:"order,omitempty"`
	Message string              `json:"message,omitempty"`
}

// StartTodayResponse is the raw body returned by PUT /orders/:id/start-today.
// Use Result to turn it into a StartTodayResult.
type StartTodayResponse struct {
	Success           bool                `json:"success"`
	Order             *ManufacturingOrder `json:"order,omitempty"`
	NeedsNewDate      bool                `json:"needsNewDate,omitempty"`
	NextAvailableDate *Date               `json:"nextAvailableDate,omitempty"`
	Message           string              `json:"message,omitempty"`
}

// StartTodayResult is either Started or RescheduleProposal
type StartTodayResult interface {
	startTodayResult()
}

// Started reports that the order moved to EN_COURS today
type Started struct {
	Order ManufacturingOrder
}

// RescheduleProposal reports that today is not possible and proposes a date.
// Nothing has been applied; the operator must confirm.
type RescheduleProposal struct {
	OrderID      uint
	ProposedDate Date
	Message      string
}

func (Started) startTodayResult()            {}
func (RescheduleProposal) startTodayResult() {}

// ErrMalformedStartResponse is returned when a start-today body is neither variant
var ErrMalformedStartResponse = errors.New("start-today response is neither started nor reschedule")

// Result decodes the response into its tagged variant
func (r StartTodayResponse) Result(orderID uint) (StartTodayResult, error) {
	switch {
	case r.Success && r.Order != nil:
		return Started{Order: *r.Order}, nil
	case r.NeedsNewDate && r.NextAvailableDate != nil && !r.NextAvailableDate.IsZero():
		return RescheduleProposal{OrderID: orderID, ProposedDate: *r.NextAvailableDate, Message: r.Message}, nil
	default:
		return nil, fmt.Errorf("%w: success=%t needsNewDate=%t", ErrMalformedStartResponse, r.Success, r.NeedsNewDate)
	}
}

// NextAvailableDateResponse is the body of GET /orders/:id/next-available-date
type NextAvailableDateResponse struct {
	NextAvailableDate Date `json:"nextAvailableDate"`
}

// APIError is the error object of the JSON error envelope
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse is the JSON error envelope: {"success": false, "error": {...}}
type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}
