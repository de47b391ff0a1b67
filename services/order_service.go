package services

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mfg-ops/ordrefab/lifecycle"
	"github.com/mfg-ops/ordrefab/models"
	"github.com/mfg-ops/ordrefab/validation"
	"gorm.io/gorm"
)

// searchHorizonDays bounds the next-available-date scan
const searchHorizonDays = 365

// OrderService implements the order backend on top of gorm
type OrderService struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewOrderService creates an order service. A nil clock means time.Now.
func NewOrderService(db *gorm.DB, clock func() time.Time) *OrderService {
	if clock == nil {
		clock = time.Now
	}
	return &OrderService{db: db, clock: clock}
}

func (s *OrderService) today() models.Date {
	return models.Today(s.clock)
}

func (s *OrderService) preloaded() *gorm.DB {
	return s.db.Preload("Product").Preload("ProductionLine")
}

// List returns every order, oldest first
func (s *OrderService) List() ([]models.ManufacturingOrder, error) {
	var orders []models.ManufacturingOrder
	if err := s.preloaded().Order("id").Find(&orders).Error; err != nil {
		return nil, dbError("Failed to retrieve orders", err)
	}
	return orders, nil
}

// Get returns one order
func (s *OrderService) Get(id uint) (models.ManufacturingOrder, error) {
	var order models.ManufacturingOrder
	if err := s.preloaded().First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return order, notFound("Order")
		}
		return order, dbError("Failed to retrieve order", err)
	}
	return order, nil
}

// Conflicts lists the active orders on lineID overlapping [start, end]
func (s *OrderService) Conflicts(lineID uint, start, end models.Date, excludeID *uint) ([]models.ManufacturingOrder, error) {
	query := s.db.Where("production_line_id = ?", lineID).
		Where("status NOT IN ?", []models.Status{models.StatusFinished, models.StatusCancelled}).
		Where("start_date <= ? AND end_date >= ?", end, start)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	var orders []models.ManufacturingOrder
	if err := query.Order("start_date").Find(&orders).Error; err != nil {
		return nil, dbError("Failed to check line availability", err)
	}
	return orders, nil
}

// CheckAvailability answers an availability query
func (s *OrderService) CheckAvailability(q models.AvailabilityQuery) (models.AvailabilityResult, error) {
	if q.LineID == 0 || q.StartDate.IsZero() || q.EndDate.IsZero() {
		return models.AvailabilityResult{}, validationError("lineId, startDate and endDate are required", nil)
	}
	if fe := validation.CheckRange(q.StartDate, q.EndDate); fe != nil {
		return models.AvailabilityResult{}, validationError(fe.Error(), []validation.FieldError{*fe})
	}

	conflicts, err := s.Conflicts(q.LineID, q.StartDate, q.EndDate, q.ExcludeOrderID)
	if err != nil {
		return models.AvailabilityResult{}, err
	}
	return availabilityResult(conflicts), nil
}

func availabilityResult(conflicts []models.ManufacturingOrder) models.AvailabilityResult {
	summaries := make([]models.OrderSummary, 0, len(conflicts))
	for _, c := range conflicts {
		summaries = append(summaries, c.Summary())
	}
	return models.AvailabilityResult{Available: len(conflicts) == 0, ConflictingOrders: summaries}
}

func lineUnavailable(conflicts []models.ManufacturingOrder) *ServiceError {
	return &ServiceError{
		Status:  http.StatusConflict,
		Code:    CodeLineUnavailable,
		Message: "Production line is not available for the requested period",
		Details: availabilityResult(conflicts).ConflictingOrders,
	}
}

func (s *OrderService) ensureFree(lineID uint, start, end models.Date, excludeID *uint) error {
	conflicts, err := s.Conflicts(lineID, start, end, excludeID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return lineUnavailable(conflicts)
	}
	return nil
}

func (s *OrderService) ensureExists(model interface{}, id uint, what string) error {
	var count int64
	if err := s.db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return dbError("Failed to look up "+what, err)
	}
	if count == 0 {
		return validationError(what+" does not exist", entityRef(what, id))
	}
	return nil
}

func entityRef(what string, id uint) map[string]interface{} {
	return map[string]interface{}{"entity": what, "id": id}
}

// Create inserts a new EN_ATTENTE order after checking references, the date
// range and the line availability
func (s *OrderService) Create(req models.CreateOrderRequest) (models.ManufacturingOrder, error) {
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return models.ManufacturingOrder{}, validationError("startDate and endDate are required", nil)
	}
	if fe := validation.CheckRange(req.StartDate, req.EndDate); fe != nil {
		return models.ManufacturingOrder{}, validationError(fe.Error(), []validation.FieldError{*fe})
	}
	if err := s.ensureExists(&models.Product{}, req.ProductID, "Product"); err != nil {
		return models.ManufacturingOrder{}, err
	}
	if err := s.ensureExists(&models.ProductionLine{}, req.ProductionLineID, "Production line"); err != nil {
		return models.ManufacturingOrder{}, err
	}
	if err := s.ensureExists(&models.User{}, req.OwnerID, "Owner"); err != nil {
		return models.ManufacturingOrder{}, err
	}
	if err := s.ensureFree(req.ProductionLineID, req.StartDate, req.EndDate, nil); err != nil {
		return models.ManufacturingOrder{}, err
	}

	owner := req.OwnerID
	order := models.ManufacturingOrder{
		Code:             req.Code,
		Status:           models.StatusPending,
		Quantity:         req.Quantity,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		ProductID:        req.ProductID,
		ProductionLineID: req.ProductionLineID,
		OwnerID:          &owner,
	}
	if err := s.db.Create(&order).Error; err != nil {
		return models.ManufacturingOrder{}, dbError("Failed to create order", err)
	}
	return s.Get(order.ID)
}

// Update applies the non-nil fields of req. The owner is never touched.
// Field changes must be allowed in the current status; a status change must
// be an automatic transition whose guard holds today.
func (s *OrderService) Update(id uint, req models.UpdateOrderRequest) (models.ManufacturingOrder, error) {
	current, err := s.Get(id)
	if err != nil {
		return current, err
	}
	if req.Empty() {
		return current, nil
	}

	fields := req
	fields.Status = nil
	if locked := lifecycle.LockedChanges(current, fields); !locked.Empty() {
		return current, &ServiceError{
			Status:  http.StatusUnprocessableEntity,
			Code:    CodeFieldLocked,
			Message: fmt.Sprintf("Fields cannot be changed while the order is %s", current.Status),
			Details: locked.List(),
		}
	}

	next := current
	if req.Status != nil && *req.Status != current.Status {
		target, ok := lifecycle.AutoTarget(current, s.today())
		if !ok || target != *req.Status || !lifecycle.CanTransition(current.Status, target, lifecycle.TriggerAuto) {
			return current, &ServiceError{
				Status:  http.StatusUnprocessableEntity,
				Code:    CodeInvalidTransition,
				Message: fmt.Sprintf("Cannot move order from %s to %s", current.Status, *req.Status),
			}
		}
		next.Status = target
	}

	if req.Code != nil {
		next.Code = *req.Code
	}
	if req.Quantity != nil {
		next.Quantity = *req.Quantity
	}
	if req.StartDate != nil {
		next.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		next.EndDate = *req.EndDate
	}
	if req.ProductID != nil && *req.ProductID != current.ProductID {
		if err := s.ensureExists(&models.Product{}, *req.ProductID, "Product"); err != nil {
			return current, err
		}
		next.ProductID = *req.ProductID
		next.Product = nil
	}
	if req.ProductionLineID != nil && *req.ProductionLineID != current.ProductionLineID {
		if err := s.ensureExists(&models.ProductionLine{}, *req.ProductionLineID, "Production line"); err != nil {
			return current, err
		}
		next.ProductionLineID = *req.ProductionLineID
		next.ProductionLine = nil
	}

	if fe := validation.CheckRange(next.StartDate, next.EndDate); fe != nil {
		return current, validationError(fe.Error(), []validation.FieldError{*fe})
	}
	rescheduled := next.ProductionLineID != current.ProductionLineID ||
		!next.StartDate.Equal(current.StartDate) || !next.EndDate.Equal(current.EndDate)
	if rescheduled && !next.Status.Terminal() {
		if err := s.ensureFree(next.ProductionLineID, next.StartDate, next.EndDate, &current.ID); err != nil {
			return current, err
		}
	}

	updates := map[string]interface{}{
		"code":               next.Code,
		"status":             next.Status,
		"quantity":           next.Quantity,
		"start_date":         next.StartDate,
		"end_date":           next.EndDate,
		"product_id":         next.ProductID,
		"production_line_id": next.ProductionLineID,
	}
	if err := s.db.Model(&models.ManufacturingOrder{ID: current.ID}).Updates(updates).Error; err != nil {
		return current, dbError("Failed to update order", err)
	}
	return s.Get(current.ID)
}

// Delete soft-deletes an order
func (s *OrderService) Delete(id uint) error {
	result := s.db.Delete(&models.ManufacturingOrder{}, id)
	if result.Error != nil {
		return dbError("Failed to delete order", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("Order")
	}
	return nil
}

func (s *OrderService) transition(order models.ManufacturingOrder, to models.Status, trigger lifecycle.Trigger) error {
	if !lifecycle.CanTransition(order.Status, to, trigger) {
		return &ServiceError{
			Status:  http.StatusUnprocessableEntity,
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("Cannot %s an order that is %s", trigger, order.Status),
		}
	}
	return nil
}

// Cancel moves an EN_ATTENTE or EN_COURS order to ANNULE
func (s *OrderService) Cancel(id uint) (models.ManufacturingOrder, error) {
	order, err := s.Get(id)
	if err != nil {
		return order, err
	}
	if err := s.transition(order, models.StatusCancelled, lifecycle.TriggerCancel); err != nil {
		return order, err
	}

	if err := s.db.Model(&models.ManufacturingOrder{ID: order.ID}).Update("status", models.StatusCancelled).Error; err != nil {
		return order, dbError("Failed to cancel order", err)
	}
	return s.Get(order.ID)
}

// StartToday starts a pending order today, keeping its duration. When the
// line is busy nothing changes and the next free date is proposed instead.
func (s *OrderService) StartToday(id uint) (models.StartTodayResponse, error) {
	order, err := s.Get(id)
	if err != nil {
		return models.StartTodayResponse{}, err
	}
	if err := s.transition(order, models.StatusInProgress, lifecycle.TriggerStart); err != nil {
		return models.StartTodayResponse{}, err
	}

	today := s.today()
	duration := order.DurationDays()
	conflicts, err := s.Conflicts(order.ProductionLineID, today, today.AddDays(duration), &order.ID)
	if err != nil {
		return models.StartTodayResponse{}, err
	}
	if len(conflicts) > 0 {
		next, err := s.nextAvailable(order.ProductionLineID, duration, &order.ID)
		if err != nil {
			return models.StartTodayResponse{}, err
		}
		return models.StartTodayResponse{
			NeedsNewDate:      true,
			NextAvailableDate: &next,
			Message:           fmt.Sprintf("Production line is busy today; next available date is %s", next),
		}, nil
	}

	started, err := s.start(order, today)
	if err != nil {
		return models.StartTodayResponse{}, err
	}
	return models.StartTodayResponse{Success: true, Order: &started, Message: "Order started"}, nil
}

// StartOnDate reschedules a pending order to start on date, keeping its
// duration, and starts it
func (s *OrderService) StartOnDate(id uint, date models.Date) (models.ManufacturingOrder, error) {
	order, err := s.Get(id)
	if err != nil {
		return order, err
	}
	if err := s.transition(order, models.StatusInProgress, lifecycle.TriggerStart); err != nil {
		return order, err
	}
	if date.IsZero() {
		return order, validationError("newStartDate is required", nil)
	}
	if fe := validation.CheckStartDate(date, s.today()); fe != nil {
		return order, validationError(fe.Message(), []validation.FieldError{*fe})
	}
	if err := s.ensureFree(order.ProductionLineID, date, date.AddDays(order.DurationDays()), &order.ID); err != nil {
		return order, err
	}
	return s.start(order, date)
}

func (s *OrderService) start(order models.ManufacturingOrder, start models.Date) (models.ManufacturingOrder, error) {
	updates := map[string]interface{}{
		"status":     models.StatusInProgress,
		"start_date": start,
		"end_date":   start.AddDays(order.DurationDays()),
	}
	if err := s.db.Model(&models.ManufacturingOrder{ID: order.ID}).Updates(updates).Error; err != nil {
		return order, dbError("Failed to start order", err)
	}
	return s.Get(order.ID)
}

// NextAvailableDate returns the first day from today on which the order's
// line is free for the order's duration
func (s *OrderService) NextAvailableDate(id uint) (models.Date, error) {
	order, err := s.Get(id)
	if err != nil {
		return models.Date{}, err
	}
	return s.nextAvailable(order.ProductionLineID, order.DurationDays(), &order.ID)
}

func (s *OrderService) nextAvailable(lineID uint, duration int, excludeID *uint) (models.Date, error) {
	today := s.today()
	for offset := 0; offset <= searchHorizonDays; offset++ {
		day := today.AddDays(offset)
		conflicts, err := s.Conflicts(lineID, day, day.AddDays(duration), excludeID)
		if err != nil {
			return models.Date{}, err
		}
		if len(conflicts) == 0 {
			return day, nil
		}
	}
	return models.DateOf(today.AddDate(1, 0, 0)), nil
}
