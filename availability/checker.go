// Package availability checks production-line schedules for conflicting orders
package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mfg-ops/ordrefab/models"
	"github.com/mfg-ops/ordrefab/validation"
	"go.uber.org/zap"
)

var (
	// ErrSuperseded is returned to a caller whose query was replaced by a newer one
	ErrSuperseded = errors.New("availability check superseded by a newer query")
	// ErrIncompleteQuery is returned when line or dates are missing or inverted
	ErrIncompleteQuery = errors.New("availability query is incomplete")
)

// Source answers availability queries, usually the order gateway
type Source interface {
	CheckAvailability(ctx context.Context, q models.AvailabilityQuery) (models.AvailabilityResult, error)
}

// ConflictError reports a negative availability result
type ConflictError struct {
	Query     models.AvailabilityQuery
	Conflicts []models.OrderSummary
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, c.String())
	}
	return fmt.Sprintf("production line %d unavailable from %s to %s, conflicts: %s",
		e.Query.LineID, e.Query.StartDate, e.Query.EndDate, strings.Join(parts, ", "))
}

// FieldError converts the conflict into the production line field error
func (e *ConflictError) FieldError() validation.FieldError {
	return validation.FieldError{
		Field:     validation.FieldProductionLine,
		Kind:      validation.KindConflict,
		Conflicts: append([]models.OrderSummary(nil), e.Conflicts...),
	}
}

// AsError returns a *ConflictError for a negative result and nil otherwise
func AsError(q models.AvailabilityQuery, result models.AvailabilityResult) error {
	if result.Available {
		return nil
	}
	return &ConflictError{Query: q, Conflicts: result.ConflictingOrders}
}

// Apply records the result on errs: a conflict error on the production line
// field when unavailable, and removal of only that error when available.
func Apply(errs validation.Errors, q models.AvailabilityQuery, result models.AvailabilityResult) {
	if result.Available {
		errs.Remove(validation.FieldProductionLine, validation.KindConflict)
		return
	}
	errs.Add((&ConflictError{Query: q, Conflicts: result.ConflictingOrders}).FieldError())
}

// Checker issues availability queries with last-query-wins semantics. Each
// Check cancels the request before it; a superseded response is never
// returned.
type Checker struct {
	source Source
	logger *zap.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewChecker builds a Checker over source
func NewChecker(source Source, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{source: source, logger: logger}
}

func (c *Checker) begin(ctx context.Context) (context.Context, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return ctx, c.seq
}

func (c *Checker) finish(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.seq {
		return false
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return true
}

// Check queries the source. It returns ErrSuperseded if another Check started
// while this one was in flight, whatever the outcome of the request.
func (c *Checker) Check(ctx context.Context, q models.AvailabilityQuery) (models.AvailabilityResult, error) {
	if !q.Ready() {
		return models.AvailabilityResult{}, ErrIncompleteQuery
	}

	reqCtx, seq := c.begin(ctx)
	result, err := c.source.CheckAvailability(reqCtx, q)
	if !c.finish(seq) {
		c.logger.Debug("dropping superseded availability result",
			zap.Uint64("seq", seq),
			zap.Uint("line_id", q.LineID),
		)
		return models.AvailabilityResult{}, ErrSuperseded
	}
	if err != nil {
		return models.AvailabilityResult{}, fmt.Errorf("check availability of line %d: %w", q.LineID, err)
	}
	return result, nil
}

// Invalidate supersedes any in-flight check without starting a new one. The
// request keeps running; only its result is dropped.
func (c *Checker) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
}
