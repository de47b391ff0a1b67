package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mfg-ops/ordrefab/config"
	"github.com/mfg-ops/ordrefab/models"
	"github.com/mfg-ops/ordrefab/services"
)

// clock is the server's notion of now; tests pin it with SetClock
var clock = time.Now

// SetClock replaces the clock used to evaluate dates (nil restores time.Now)
func SetClock(fn func() time.Time) {
	if fn == nil {
		fn = time.Now
	}
	clock = fn
}

func orderService() *services.OrderService {
	return services.NewOrderService(config.GetDB(), clock)
}

// respondError writes err using the JSON error envelope
func respondError(c *gin.Context, err error) {
	svcErr := services.AsServiceError(err)
	if svcErr.Err != nil {
		_ = c.Error(svcErr.Err)
	}

	body := gin.H{
		"code":    svcErr.Code,
		"message": svcErr.Message,
	}
	if svcErr.Details != nil {
		body["details"] = svcErr.Details
	}
	c.JSON(svcErr.Status, gin.H{
		"success": false,
		"error":   body,
	})
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

// parseOrderID reads the :id path parameter, answering 400 when it is not a
// positive integer
func parseOrderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Order ID must be a positive integer",
			},
		})
		return 0, false
	}
	return uint(id), true
}

// ListOrders handles GET /api/v1/orders
func ListOrders(c *gin.Context) {
	orders, err := orderService().List()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
	})
}

// GetOrder handles GET /api/v1/orders/:id
func GetOrder(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}

	order, err := orderService().Get(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// CreateOrder handles POST /api/v1/orders - creates an EN_ATTENTE order
func CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := orderService().Create(req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    order,
	})
}

// UpdateOrder handles PUT /api/v1/orders/:id - applies the provided fields
func UpdateOrder(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}

	var req models.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := orderService().Update(id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// DeleteOrder handles DELETE /api/v1/orders/:id
func DeleteOrder(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}

	if err := orderService().Delete(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order deleted",
	})
}

// CancelOrder handles PUT /api/v1/orders/:id/cancel
func CancelOrder(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}

	order, err := orderService().Cancel(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.CancelResponse{
		Success: true,
		Order:   &order,
		Message: "Order cancelled",
	})
}

// StartOrderToday handles PUT /api/v1/orders/:id/start-today. A busy line is
// not an error: the response proposes the next available date instead.
func StartOrderToday(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}

	resp, err := orderService().StartToday(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// StartOrderOnDate handles PUT /api/v1/orders/:id/start-on-date?newStartDate=YYYY-MM-DD
func StartOrderOnDate(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}

	date, err := models.ParseDate(c.Query("newStartDate"))
	if err != nil {
		bindError(c, err)
		return
	}

	order, err := orderService().StartOnDate(id, date)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StartOnDateResponse{
		Success: true,
		Order:   &order,
		Message: "Order rescheduled and started",
	})
}

// NextAvailableDate handles GET /api/v1/orders/:id/next-available-date
func NextAvailableDate(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}

	date, err := orderService().NextAvailableDate(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NextAvailableDateResponse{NextAvailableDate: date})
}

// CheckAvailability handles GET /api/v1/orders/check-availability
func CheckAvailability(c *gin.Context) {
	var q models.AvailabilityQuery

	lineID, err := strconv.ParseUint(c.Query("lineId"), 10, 32)
	if err != nil {
		bindError(c, err)
		return
	}
	q.LineID = uint(lineID)

	if q.StartDate, err = models.ParseDate(c.Query("startDate")); err != nil {
		bindError(c, err)
		return
	}
	if q.EndDate, err = models.ParseDate(c.Query("endDate")); err != nil {
		bindError(c, err)
		return
	}
	if raw := c.Query("excludeOrderId"); raw != "" {
		exclude, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			bindError(c, err)
			return
		}
		excludeID := uint(exclude)
		q.ExcludeOrderID = &excludeID
	}

	result, err := orderService().CheckAvailability(q)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListStatuses handles GET /api/v1/orders/statuses
func ListStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    models.Statuses,
	})
}
