package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mfg-ops/ordrefab/models"
	"github.com/mfg-ops/ordrefab/store"
	"github.com/mfg-ops/ordrefab/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the status patches a sweep keeps in flight
const DefaultConcurrency = 4

var (
	// ErrUnknownOrder is returned for an action on an order missing from the store
	ErrUnknownOrder = errors.New("order not in local collection")
	// ErrTransitionNotAllowed is returned when the status machine forbids the action
	ErrTransitionNotAllowed = errors.New("transition not allowed from current status")
)

// OrderAPI is the slice of the order gateway the engine drives
type OrderAPI interface {
	ListOrders(ctx context.Context) ([]models.ManufacturingOrder, error)
	UpdateOrder(ctx context.Context, id uint, req models.UpdateOrderRequest) (models.ManufacturingOrder, error)
	CancelOrder(ctx context.Context, id uint) (models.ManufacturingOrder, error)
	StartToday(ctx context.Context, id uint) (models.StartTodayResult, error)
	StartOnDate(ctx context.Context, id uint, date models.Date) (models.ManufacturingOrder, error)
	DeleteOrder(ctx context.Context, id uint) error
}

// ActionError wraps the failure of an explicit operator action. The cached
// order is left as it was.
type ActionError struct {
	Action  string
	OrderID uint
	Err     error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s order %d: %v", e.Action, e.OrderID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// TransitionRecord is one status change confirmed during a sweep
type TransitionRecord struct {
	OrderID uint          `json:"orderId"`
	Code    string        `json:"code"`
	From    models.Status `json:"from"`
	To      models.Status `json:"to"`
}

// SweepFailure is one status patch that failed during a sweep
type SweepFailure struct {
	OrderID uint          `json:"orderId"`
	Code    string        `json:"code"`
	Target  models.Status `json:"target"`
	Error   string        `json:"error"`
}

// SweepReport summarizes one sweep
type SweepReport struct {
	StartedAt   time.Time          `json:"startedAt"`
	FinishedAt  time.Time          `json:"finishedAt"`
	Skipped     bool               `json:"skipped,omitempty"`
	Transitions []TransitionRecord `json:"transitions"`
	Failures    []SweepFailure     `json:"failures"`
}

// Empty reports whether the sweep neither changed nor attempted anything
func (r SweepReport) Empty() bool {
	return len(r.Transitions) == 0 && len(r.Failures) == 0
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the wall clock used to compute today
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics records sweep activity on m
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithConcurrency bounds the patches in flight during a sweep
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithGuard shares an edit guard with the order form
func WithGuard(g *EditGuard) Option {
	return func(e *Engine) { e.guard = g }
}

// Engine reconciles the local order collection with the backend and runs
// operator actions against it
type Engine struct {
	api         OrderAPI
	orders      *store.Orders
	guard       *EditGuard
	clock       func() time.Time
	logger      *zap.Logger
	metrics     *Metrics
	concurrency int

	mu       sync.Mutex
	inFlight map[uint]models.Status
	lastErr  error
}

// NewEngine builds an engine over api and the shared collection
func NewEngine(api OrderAPI, orders *store.Orders, opts ...Option) *Engine {
	e := &Engine{
		api:         api,
		orders:      orders,
		guard:       &EditGuard{},
		clock:       time.Now,
		logger:      zap.NewNop(),
		concurrency: DefaultConcurrency,
		inFlight:    make(map[uint]models.Status),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Orders exposes the collection the engine maintains
func (e *Engine) Orders() *store.Orders {
	return e.orders
}

// Guard returns the edit guard consulted before each sweep
func (e *Engine) Guard() *EditGuard {
	return e.guard
}

// Today is the current calendar day by the engine clock
func (e *Engine) Today() models.Date {
	return models.Today(e.clock)
}

// LastError returns the last failed list fetch, until dismissed or until a
// fetch succeeds
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// DismissError clears LastError
func (e *Engine) DismissError() {
	e.mu.Lock()
	e.lastErr = nil
	e.mu.Unlock()
}

// Refresh replaces the collection with the backend list, then sweeps it. On
// failure the cached orders stay in place.
func (e *Engine) Refresh(ctx context.Context) (SweepReport, error) {
	orders, err := e.api.ListOrders(ctx)
	if err != nil {
		err = fmt.Errorf("refresh orders: %w", err)
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()
		e.metrics.observeRefreshError()
		e.logger.Warn("order refresh failed, keeping cached orders", zap.Error(err))
		return SweepReport{}, err
	}

	e.orders.Replace(orders)
	e.DismissError()
	return e.Sweep(ctx), nil
}

type sweepJob struct {
	order  models.ManufacturingOrder
	target models.Status
}

// claim marks a transition as in flight. It fails if one already is.
func (e *Engine) claim(id uint, target models.Status) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = target
	return true
}

func (e *Engine) release(id uint) {
	e.mu.Lock()
	delete(e.inFlight, id)
	e.mu.Unlock()
}

// Sweep moves every cached order whose date guard holds one step forward.
// Each patch carries the status only; the backend response is merged back.
// Failures are isolated per order.
func (e *Engine) Sweep(ctx context.Context) SweepReport {
	report := SweepReport{StartedAt: e.clock()}

	if id, editing := e.guard.Active(); editing {
		e.logger.Debug("edit in progress, skipping sweep", zap.Uint("order_id", id))
		report.Skipped = true
		report.FinishedAt = e.clock()
		e.metrics.observeSweep(report)
		return report
	}

	today := e.Today()
	var jobs []sweepJob
	for _, o := range e.orders.Snapshot() {
		target, ok := AutoTarget(o, today)
		if !ok || !e.claim(o.ID, target) {
			continue
		}
		jobs = append(jobs, sweepJob{order: o, target: target})
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			defer e.release(job.order.ID)

			updated, err := e.api.UpdateOrder(ctx, job.order.ID, models.StatusPatch(job.target))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.Warn("auto transition failed",
					zap.Uint("order_id", job.order.ID),
					zap.String("code", job.order.Code),
					zap.String("target", string(job.target)),
					zap.Error(err),
				)
				e.metrics.observeFailure(string(job.target))
				report.Failures = append(report.Failures, SweepFailure{
					OrderID: job.order.ID,
					Code:    job.order.Code,
					Target:  job.target,
					Error:   err.Error(),
				})
				return nil
			}

			e.orders.Merge(updated)
			e.metrics.observeTransition(string(job.order.Status), string(updated.Status))
			report.Transitions = append(report.Transitions, TransitionRecord{
				OrderID: job.order.ID,
				Code:    job.order.Code,
				From:    job.order.Status,
				To:      updated.Status,
			})
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = e.clock()
	e.metrics.observeSweep(report)
	if !report.Empty() {
		e.logger.Info("sweep finished",
			zap.Int("transitions", len(report.Transitions)),
			zap.Int("failures", len(report.Failures)),
		)
	}
	return report
}

func (e *Engine) lookup(action string, id uint) (models.ManufacturingOrder, error) {
	o, ok := e.orders.Get(id)
	if !ok {
		return models.ManufacturingOrder{}, &ActionError{Action: action, OrderID: id, Err: ErrUnknownOrder}
	}
	return o, nil
}

// Cancel moves an EN_ATTENTE or EN_COURS order to ANNULE
func (e *Engine) Cancel(ctx context.Context, id uint) (models.ManufacturingOrder, error) {
	o, err := e.lookup("cancel", id)
	if err != nil {
		return models.ManufacturingOrder{}, err
	}
	if !CanTransition(o.Status, models.StatusCancelled, TriggerCancel) {
		return models.ManufacturingOrder{}, &ActionError{Action: "cancel", OrderID: id,
			Err: fmt.Errorf("%w: %s", ErrTransitionNotAllowed, o.Status)}
	}

	updated, err := e.api.CancelOrder(ctx, id)
	if err != nil {
		return models.ManufacturingOrder{}, &ActionError{Action: "cancel", OrderID: id, Err: err}
	}
	e.orders.Merge(updated)
	return updated, nil
}

// StartToday asks the backend to start an EN_ATTENTE order today. A
// RescheduleProposal result has not been applied; pass it to
// ConfirmReschedule once the operator accepts it.
func (e *Engine) StartToday(ctx context.Context, id uint) (models.StartTodayResult, error) {
	o, err := e.lookup("start", id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, models.StatusInProgress, TriggerStart) {
		return nil, &ActionError{Action: "start", OrderID: id,
			Err: fmt.Errorf("%w: %s", ErrTransitionNotAllowed, o.Status)}
	}

	result, err := e.api.StartToday(ctx, id)
	if err != nil {
		return nil, &ActionError{Action: "start", OrderID: id, Err: err}
	}
	if started, ok := result.(models.Started); ok {
		e.orders.Merge(started.Order)
	}
	return result, nil
}

// ConfirmReschedule starts the order on the date the backend proposed
func (e *Engine) ConfirmReschedule(ctx context.Context, p models.RescheduleProposal) (models.ManufacturingOrder, error) {
	return e.startOn(ctx, "confirm reschedule", p.OrderID, p.ProposedDate)
}

// Reschedule starts an EN_ATTENTE order on a date chosen by the operator
func (e *Engine) Reschedule(ctx context.Context, id uint, date models.Date) (models.ManufacturingOrder, error) {
	if date.IsZero() {
		return models.ManufacturingOrder{}, &ActionError{Action: "reschedule", OrderID: id,
			Err: validation.FieldError{Field: validation.FieldStartDate, Kind: validation.KindRequired}}
	}
	if fe := validation.CheckStartDate(date, e.Today()); fe != nil {
		return models.ManufacturingOrder{}, &ActionError{Action: "reschedule", OrderID: id, Err: *fe}
	}
	return e.startOn(ctx, "reschedule", id, date)
}

func (e *Engine) startOn(ctx context.Context, action string, id uint, date models.Date) (models.ManufacturingOrder, error) {
	o, err := e.lookup(action, id)
	if err != nil {
		return models.ManufacturingOrder{}, err
	}
	if !CanTransition(o.Status, models.StatusInProgress, TriggerStart) {
		return models.ManufacturingOrder{}, &ActionError{Action: action, OrderID: id,
			Err: fmt.Errorf("%w: %s", ErrTransitionNotAllowed, o.Status)}
	}

	updated, err := e.api.StartOnDate(ctx, id, date)
	if err != nil {
		return models.ManufacturingOrder{}, &ActionError{Action: action, OrderID: id, Err: err}
	}
	e.orders.Merge(updated)
	return updated, nil
}

// Delete removes the order on the backend, then locally
func (e *Engine) Delete(ctx context.Context, id uint) error {
	if err := e.api.DeleteOrder(ctx, id); err != nil {
		return &ActionError{Action: "delete", OrderID: id, Err: err}
	}
	e.orders.Remove(id)
	return nil
}
