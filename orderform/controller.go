package orderform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mfg-ops/ordrefab/availability"
	"github.com/mfg-ops/ordrefab/lifecycle"
	"github.com/mfg-ops/ordrefab/models"
	"github.com/mfg-ops/ordrefab/store"
	"github.com/mfg-ops/ordrefab/validation"
	"go.uber.org/zap"
)

var (
	ErrFormClosed        = errors.New("order form is not open")
	ErrUnknownOrder      = errors.New("order not in local collection")
	ErrOrderFrozen       = errors.New("order is finished or cancelled and cannot be edited")
	ErrEditInProgress    = errors.New("another order is being edited")
	ErrSubmitInProgress  = errors.New("a submission is already in flight")
	ErrAvailabilityStale = errors.New("availability changed during submission, retry")
)

// OrderWriter persists orders, usually the gateway client
type OrderWriter interface {
	CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.ManufacturingOrder, error)
	UpdateOrder(ctx context.Context, id uint, req models.UpdateOrderRequest) (models.ManufacturingOrder, error)
}

// OwnerProvider returns the authenticated user, who becomes the owner of
// created orders
type OwnerProvider interface {
	CurrentUser(ctx context.Context) (models.User, error)
}

// Config wires a Controller
type Config struct {
	Writer  OrderWriter
	Checker *availability.Checker
	Owners  OwnerProvider
	Orders  *store.Orders
	Guard   *lifecycle.EditGuard
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Controller holds the form state and turns operator input into create and
// update requests. It is safe for concurrent use; no lock is held across a
// network call.
type Controller struct {
	writer  OrderWriter
	checker *availability.Checker
	owners  OwnerProvider
	orders  *store.Orders
	guard   *lifecycle.EditGuard
	clock   func() time.Time
	logger  *zap.Logger

	mu         sync.Mutex
	state      State
	original   models.ManufacturingOrder
	input      validation.OrderInput
	errs       validation.Errors
	applied    *models.AvailabilityQuery
	submitErr  error
	submitting bool
}

// New builds a closed form
func New(cfg Config) *Controller {
	c := &Controller{
		writer:  cfg.Writer,
		checker: cfg.Checker,
		owners:  cfg.Owners,
		orders:  cfg.Orders,
		guard:   cfg.Guard,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		errs:    validation.New(),
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.guard == nil {
		c.guard = &lifecycle.EditGuard{}
	}
	return c
}

// State returns the current form state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Input returns a copy of the current input
func (c *Controller) Input() validation.OrderInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyInput(c.input)
}

// Errors returns a copy of the current field errors
func (c *Controller) Errors() validation.Errors {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs.Clone()
}

// SubmitError returns the transport failure of the last submission, if the
// form is still open
func (c *Controller) SubmitError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitErr
}

// resetLocked starts a new session in mode. Callers hold c.mu.
func (c *Controller) resetLocked(mode Mode, orderID uint) {
	if c.state.Mode == Editing {
		c.guard.End(c.state.OrderID)
	}
	c.state = State{Mode: mode, OrderID: orderID, Session: c.state.Session + 1}
	c.original = models.ManufacturingOrder{}
	c.input = validation.OrderInput{}
	c.errs = validation.New()
	c.applied = nil
	c.submitErr = nil
	c.submitting = false
	if c.checker != nil {
		c.checker.Invalidate()
	}
}

// OpenCreate opens an empty form. An open form is discarded first.
func (c *Controller) OpenCreate() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked(Creating, 0)
	return c.state
}

// OpenEdit opens the form on a cached order. Finished and cancelled orders
// cannot be opened. While the form edits the order, the sweep is held off.
func (c *Controller) OpenEdit(orderID uint) (State, error) {
	order, ok := c.orders.Get(orderID)
	if !ok {
		return c.State(), fmt.Errorf("open order %d: %w", orderID, ErrUnknownOrder)
	}
	if lifecycle.Frozen(order.Status) {
		return c.State(), fmt.Errorf("open order %s: %w", order.Code, ErrOrderFrozen)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state
	if prev.Mode == Editing {
		c.guard.End(prev.OrderID)
	}
	if !c.guard.Begin(orderID) {
		if prev.Mode == Editing {
			c.guard.Begin(prev.OrderID)
		}
		return c.state, ErrEditInProgress
	}
	// the guard is already held for orderID, so resetLocked must not release it
	c.state.Mode = Closed
	c.resetLocked(Editing, orderID)
	c.original = order
	c.input = validation.InputFromOrder(order)
	c.revalidateLocked()
	return c.state, nil
}

// Close discards the form. Requests already issued keep running, but their
// results no longer touch the form.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Mode == Closed {
		return
	}
	c.resetLocked(Closed, 0)
}

func (c *Controller) today() models.Date {
	return models.Today(c.clock)
}

// dateRulesLocked: past-date rules apply on create, and on edit only to a
// date the operator changed
func (c *Controller) dateRulesLocked() validation.DateRules {
	if c.state.Mode == Creating {
		return validation.DateRules{StartNotInPast: true, EndNotInPast: true}
	}
	return validation.DateRules{
		StartNotInPast: !c.input.StartDate.Equal(c.original.StartDate),
		EndNotInPast:   !c.input.EndDate.Equal(c.original.EndDate),
	}
}

// revalidateLocked recomputes the field and date errors, keeping the
// availability conflict, which only an availability result may change
func (c *Controller) revalidateLocked() {
	conflict, hasConflict := c.errs.Get(validation.FieldProductionLine, validation.KindConflict)
	c.errs = validation.Check(c.input, c.today(), c.dateRulesLocked())
	if hasConflict {
		c.errs.Add(conflict)
	}
}

// lockedLocked rejects a change to field when the edited order's status
// forbids it
func (c *Controller) lockedLocked(field validation.Field) error {
	if c.state.Mode == Closed {
		return ErrFormClosed
	}
	if c.state.Mode == Editing && !lifecycle.Editable(c.original.Status, field) {
		return validation.FieldError{Field: field, Kind: validation.KindLocked, Param: string(c.original.Status)}
	}
	return nil
}

func (c *Controller) set(field validation.Field, apply func(in *validation.OrderInput)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.lockedLocked(field); err != nil {
		return err
	}
	apply(&c.input)
	c.revalidateLocked()
	return nil
}

// SetCode changes the order code
func (c *Controller) SetCode(code string) error {
	return c.set(validation.FieldCode, func(in *validation.OrderInput) { in.Code = code })
}

// SetQuantity changes the quantity
func (c *Controller) SetQuantity(qty int) error {
	return c.set(validation.FieldQuantity, func(in *validation.OrderInput) { in.Quantity = &qty })
}

// SetProduct changes the product
func (c *Controller) SetProduct(productID uint) error {
	return c.set(validation.FieldProduct, func(in *validation.OrderInput) { in.ProductID = productID })
}

// SetStartDate changes the start date and rechecks line availability
func (c *Controller) SetStartDate(ctx context.Context, d models.Date) error {
	if err := c.set(validation.FieldStartDate, func(in *validation.OrderInput) { in.StartDate = d }); err != nil {
		return err
	}
	return c.RefreshAvailability(ctx)
}

// SetEndDate changes the end date and rechecks line availability
func (c *Controller) SetEndDate(ctx context.Context, d models.Date) error {
	if err := c.set(validation.FieldEndDate, func(in *validation.OrderInput) { in.EndDate = d }); err != nil {
		return err
	}
	return c.RefreshAvailability(ctx)
}

// SetProductionLine changes the line and rechecks its availability
func (c *Controller) SetProductionLine(ctx context.Context, lineID uint) error {
	if err := c.set(validation.FieldProductionLine, func(in *validation.OrderInput) { in.ProductionLineID = lineID }); err != nil {
		return err
	}
	return c.RefreshAvailability(ctx)
}

func (c *Controller) queryLocked() models.AvailabilityQuery {
	q := models.AvailabilityQuery{
		LineID:    c.input.ProductionLineID,
		StartDate: c.input.StartDate,
		EndDate:   c.input.EndDate,
	}
	if c.state.Mode == Editing {
		id := c.state.OrderID
		q.ExcludeOrderID = &id
	}
	return q
}

// RefreshAvailability checks the line for the current input. Superseded
// results and results for a closed or replaced form are dropped. The
// returned error is a read failure; an unavailable line is recorded as a
// conflict error on the production line field instead.
func (c *Controller) RefreshAvailability(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Mode == Closed {
		c.mu.Unlock()
		return ErrFormClosed
	}
	session := c.state.Session
	q := c.queryLocked()
	if !q.Ready() {
		c.errs.Remove(validation.FieldProductionLine, validation.KindConflict)
		c.applied = nil
		c.mu.Unlock()
		if c.checker != nil {
			c.checker.Invalidate()
		}
		return nil
	}
	c.mu.Unlock()

	if c.checker == nil {
		return nil
	}
	result, err := c.checker.Check(ctx, q)
	if errors.Is(err, availability.ErrSuperseded) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Session != session || !q.Same(c.queryLocked()) {
		return nil
	}
	if err != nil {
		c.logger.Warn("availability check failed", zap.Uint("line_id", q.LineID), zap.Error(err))
		return err
	}
	availability.Apply(c.errs, q, result)
	c.applied = &q
	return nil
}

// blockingLocked returns the field errors as an error, or nil
func (c *Controller) blockingLocked() error {
	if c.errs.Empty() {
		return nil
	}
	return c.errs.Clone()
}

// Submit validates the form and persists it. Field errors are returned as
// validation.Errors and an unavailable line as *availability.ConflictError,
// both without any write. A write failure keeps the form open with its input
// and is also exposed by SubmitError. On success the store is updated and the
// form closes.
func (c *Controller) Submit(ctx context.Context) (models.ManufacturingOrder, error) {
	c.mu.Lock()
	if c.state.Mode == Closed {
		c.mu.Unlock()
		return models.ManufacturingOrder{}, ErrFormClosed
	}
	if c.submitting {
		c.mu.Unlock()
		return models.ManufacturingOrder{}, ErrSubmitInProgress
	}
	c.revalidateLocked()
	q := c.queryLocked()
	recheck := c.applied == nil || !c.applied.Same(q)
	if err := c.blockingLocked(); err != nil && !(recheck && onlyConflict(c.errs)) {
		c.mu.Unlock()
		return models.ManufacturingOrder{}, err
	}
	c.submitting = true
	c.submitErr = nil
	snap := submission{state: c.state, query: q, input: copyInput(c.input), original: c.original}
	state := snap.state
	c.mu.Unlock()

	order, err := c.submit(ctx, snap, recheck)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Session != state.Session {
		// the form moved on while the request was in flight
		return order, err
	}
	c.submitting = false

	var (
		verrs    validation.Errors
		conflict *availability.ConflictError
	)
	switch {
	case err == nil:
		c.resetLocked(Closed, 0)
	case errors.As(err, &verrs):
		c.errs.Merge(verrs)
	case errors.As(err, &conflict), errors.Is(err, ErrAvailabilityStale), errors.Is(err, ErrOrderFrozen):
		// shown inline, not a write failure
	default:
		c.submitErr = err
	}
	return order, err
}

func onlyConflict(errs validation.Errors) bool {
	for _, fe := range errs.List() {
		if fe.Kind != validation.KindConflict {
			return false
		}
	}
	return true
}

// submission is the form as it was validated. Setters running while the
// request is in flight never change it.
type submission struct {
	state    State
	query    models.AvailabilityQuery
	input    validation.OrderInput
	original models.ManufacturingOrder
}

func copyInput(in validation.OrderInput) validation.OrderInput {
	if in.Quantity != nil {
		q := *in.Quantity
		in.Quantity = &q
	}
	return in
}

// current reports whether the form is still in the session snap was taken
// from
func (c *Controller) current(snap submission) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Session != snap.state.Session {
		return ErrFormClosed
	}
	return nil
}

func (c *Controller) submit(ctx context.Context, snap submission, recheck bool) (models.ManufacturingOrder, error) {
	state, q := snap.state, snap.query
	if recheck && c.checker != nil {
		result, err := c.checker.Check(ctx, q)
		if errors.Is(err, availability.ErrSuperseded) {
			return models.ManufacturingOrder{}, ErrAvailabilityStale
		}
		if err != nil {
			return models.ManufacturingOrder{}, err
		}
		c.mu.Lock()
		if c.state.Session == state.Session {
			availability.Apply(c.errs, q, result)
			c.applied = &q
		}
		c.mu.Unlock()
		if err := availability.AsError(q, result); err != nil {
			return models.ManufacturingOrder{}, err
		}
	}

	if state.Mode == Creating {
		return c.create(ctx, snap)
	}
	return c.update(ctx, snap)
}

func (c *Controller) create(ctx context.Context, snap submission) (models.ManufacturingOrder, error) {
	in := snap.input
	if in.Quantity == nil {
		errs := validation.New()
		errs.Add(validation.FieldError{Field: validation.FieldQuantity, Kind: validation.KindRequired})
		return models.ManufacturingOrder{}, errs
	}
	owner, err := c.owners.CurrentUser(ctx)
	if err != nil {
		return models.ManufacturingOrder{}, fmt.Errorf("resolve order owner: %w", err)
	}
	if err := c.current(snap); err != nil {
		return models.ManufacturingOrder{}, err
	}

	req := models.CreateOrderRequest{
		Code:             in.Code,
		Quantity:         *in.Quantity,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		ProductID:        in.ProductID,
		ProductionLineID: in.ProductionLineID,
		OwnerID:          owner.ID,
	}
	created, err := c.writer.CreateOrder(ctx, req)
	if err != nil {
		return models.ManufacturingOrder{}, err
	}
	if !created.HasOwner() {
		created.OwnerID = &owner.ID
	}
	c.orders.Append(created)
	c.logger.Info("order created", zap.Uint("order_id", created.ID), zap.String("code", created.Code))
	return created, nil
}

// changes builds an update carrying only the fields that differ from the
// original order
func changes(original models.ManufacturingOrder, in validation.OrderInput) models.UpdateOrderRequest {
	var req models.UpdateOrderRequest
	if in.Code != original.Code {
		code := in.Code
		req.Code = &code
	}
	if in.Quantity != nil && *in.Quantity != original.Quantity {
		qty := *in.Quantity
		req.Quantity = &qty
	}
	if !in.StartDate.Equal(original.StartDate) {
		d := in.StartDate
		req.StartDate = &d
	}
	if !in.EndDate.Equal(original.EndDate) {
		d := in.EndDate
		req.EndDate = &d
	}
	if in.ProductID != original.ProductID {
		id := in.ProductID
		req.ProductID = &id
	}
	if in.ProductionLineID != original.ProductionLineID {
		id := in.ProductionLineID
		req.ProductionLineID = &id
	}
	return req
}

func (c *Controller) update(ctx context.Context, snap submission) (models.ManufacturingOrder, error) {
	orderID := snap.state.OrderID
	current, ok := c.orders.Get(orderID)
	if !ok {
		return models.ManufacturingOrder{}, fmt.Errorf("update order %d: %w", orderID, ErrUnknownOrder)
	}
	if lifecycle.Frozen(current.Status) {
		return models.ManufacturingOrder{}, fmt.Errorf("update order %s: %w", current.Code, ErrOrderFrozen)
	}

	req := changes(snap.original, snap.input)
	if locked := lifecycle.LockedChanges(current, req); !locked.Empty() {
		return models.ManufacturingOrder{}, locked
	}
	if req.Empty() {
		return current, nil
	}
	if err := c.current(snap); err != nil {
		return models.ManufacturingOrder{}, err
	}

	updated, err := c.writer.UpdateOrder(ctx, orderID, req)
	if err != nil {
		return models.ManufacturingOrder{}, err
	}
	c.orders.Merge(updated)
	if merged, ok := c.orders.Get(orderID); ok {
		updated = merged
	}
	c.logger.Info("order updated", zap.Uint("order_id", orderID), zap.String("code", updated.Code))
	return updated, nil
}
