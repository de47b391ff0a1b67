package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mfg-ops/ordrefab/models"
	"github.com/mfg-ops/ordrefab/validation"
)

const ordersPath = "/api/v1/orders"

var (
	// ErrRejected is returned when the backend answers 2xx with success=false
	ErrRejected = errors.New("request rejected by backend")
	// ErrEmptyUpdate is returned for an update that changes nothing
	ErrEmptyUpdate = errors.New("update carries no field")
)

func orderPath(id uint, suffix string) string {
	p := ordersPath + "/" + strconv.FormatUint(uint64(id), 10)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// ListOrders fetches every order
func (c *Client) ListOrders(ctx context.Context) ([]models.ManufacturingOrder, error) {
	var env dataEnvelope[[]models.ManufacturingOrder]
	if err := c.do(ctx, "list orders", http.MethodGet, ordersPath, nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// GetOrder fetches one order
func (c *Client) GetOrder(ctx context.Context, id uint) (models.ManufacturingOrder, error) {
	var env dataEnvelope[models.ManufacturingOrder]
	if err := c.do(ctx, "get order", http.MethodGet, orderPath(id, ""), nil, nil, &env); err != nil {
		return models.ManufacturingOrder{}, err
	}
	return env.Data, nil
}

// CreateOrder creates an order and returns it with its assigned id. An
// inverted date range is refused before any request is sent.
func (c *Client) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.ManufacturingOrder, error) {
	if fe := validation.CheckRange(req.StartDate, req.EndDate); fe != nil {
		return models.ManufacturingOrder{}, *fe
	}

	var env dataEnvelope[models.ManufacturingOrder]
	if err := c.do(ctx, "create order", http.MethodPost, ordersPath, nil, req, &env); err != nil {
		return models.ManufacturingOrder{}, err
	}
	return env.Data, nil
}

// UpdateOrder applies the non-nil fields of req
func (c *Client) UpdateOrder(ctx context.Context, id uint, req models.UpdateOrderRequest) (models.ManufacturingOrder, error) {
	if req.Empty() {
		return models.ManufacturingOrder{}, ErrEmptyUpdate
	}
	if req.StartDate != nil && req.EndDate != nil {
		if fe := validation.CheckRange(*req.StartDate, *req.EndDate); fe != nil {
			return models.ManufacturingOrder{}, *fe
		}
	}

	var env dataEnvelope[models.ManufacturingOrder]
	if err := c.do(ctx, "update order", http.MethodPut, orderPath(id, ""), nil, req, &env); err != nil {
		return models.ManufacturingOrder{}, err
	}
	return env.Data, nil
}

// DeleteOrder deletes an order
func (c *Client) DeleteOrder(ctx context.Context, id uint) error {
	return c.do(ctx, "delete order", http.MethodDelete, orderPath(id, ""), nil, nil, nil)
}

// CancelOrder moves an order to ANNULE
func (c *Client) CancelOrder(ctx context.Context, id uint) (models.ManufacturingOrder, error) {
	var resp models.CancelResponse
	if err := c.do(ctx, "cancel order", http.MethodPut, orderPath(id, "cancel"), nil, nil, &resp); err != nil {
		return models.ManufacturingOrder{}, err
	}
	if !resp.Success || resp.Order == nil {
		return models.ManufacturingOrder{}, &TransportError{
			Op:         "cancel order",
			StatusCode: http.StatusOK,
			Message:    resp.Message,
			Err:        ErrRejected,
		}
	}
	return *resp.Order, nil
}

// StartToday asks the backend to start the order today. The result is
// models.Started or a models.RescheduleProposal that has not been applied.
func (c *Client) StartToday(ctx context.Context, id uint) (models.StartTodayResult, error) {
	var resp models.StartTodayResponse
	if err := c.do(ctx, "start order today", http.MethodPut, orderPath(id, "start-today"), nil, nil, &resp); err != nil {
		return nil, err
	}
	result, err := resp.Result(id)
	if err != nil {
		return nil, &TransportError{Op: "start order today", StatusCode: http.StatusOK, Message: resp.Message, Err: err}
	}
	return result, nil
}

// StartOnDate reschedules the order to start on date and starts it
func (c *Client) StartOnDate(ctx context.Context, id uint, date models.Date) (models.ManufacturingOrder, error) {
	query := url.Values{"newStartDate": {date.String()}}

	var resp models.StartOnDateResponse
	if err := c.do(ctx, "start order on date", http.MethodPut, orderPath(id, "start-on-date"), query, nil, &resp); err != nil {
		return models.ManufacturingOrder{}, err
	}
	if !resp.Success || resp.Order == nil {
		return models.ManufacturingOrder{}, &TransportError{
			Op:         "start order on date",
			StatusCode: http.StatusOK,
			Message:    resp.Message,
			Err:        ErrRejected,
		}
	}
	return *resp.Order, nil
}

// NextAvailableDate asks for the first day the order's line is free for its duration
func (c *Client) NextAvailableDate(ctx context.Context, id uint) (models.Date, error) {
	var resp models.NextAvailableDateResponse
	if err := c.do(ctx, "next available date", http.MethodGet, orderPath(id, "next-available-date"), nil, nil, &resp); err != nil {
		return models.Date{}, err
	}
	return resp.NextAvailableDate, nil
}

// CheckAvailability asks whether the line is free over the query window
func (c *Client) CheckAvailability(ctx context.Context, q models.AvailabilityQuery) (models.AvailabilityResult, error) {
	query := url.Values{
		"lineId":    {strconv.FormatUint(uint64(q.LineID), 10)},
		"startDate": {q.StartDate.String()},
		"endDate":   {q.EndDate.String()},
	}
	if q.ExcludeOrderID != nil {
		query.Set("excludeOrderId", strconv.FormatUint(uint64(*q.ExcludeOrderID), 10))
	}

	var result models.AvailabilityResult
	if err := c.do(ctx, "check availability", http.MethodGet, ordersPath+"/check-availability", query, nil, &result); err != nil {
		return models.AvailabilityResult{}, err
	}
	return result, nil
}

// ListStatuses fetches the status vocabulary the backend accepts
func (c *Client) ListStatuses(ctx context.Context) ([]models.Status, error) {
	var env dataEnvelope[[]models.Status]
	if err := c.do(ctx, "list statuses", http.MethodGet, ordersPath+"/statuses", nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// ListProducts fetches the product catalog
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var env dataEnvelope[[]models.Product]
	if err := c.do(ctx, "list products", http.MethodGet, "/api/v1/products", nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// ListProductionLines fetches the production lines
func (c *Client) ListProductionLines(ctx context.Context) ([]models.ProductionLine, error) {
	var env dataEnvelope[[]models.ProductionLine]
	if err := c.do(ctx, "list production lines", http.MethodGet, "/api/v1/production-lines", nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// CurrentUser fetches the profile of the authenticated user
func (c *Client) CurrentUser(ctx context.Context) (models.User, error) {
	var env dataEnvelope[models.User]
	if err := c.do(ctx, "current user", http.MethodGet, "/api/v1/users/me", nil, nil, &env); err != nil {
		return models.User{}, err
	}
	return env.Data, nil
}

// Health calls the public health endpoint, without credentials
func (c *Client) Health(ctx context.Context) error {
	path := strings.TrimRight(c.publicPrefix, "/") + "/health"
	if c.publicPrefix == "" {
		path = DefaultPublicPrefix + "health"
	}
	if err := c.do(ctx, "health", http.MethodGet, path, nil, nil, nil); err != nil {
		return fmt.Errorf("order API unhealthy: %w", err)
	}
	return nil
}
