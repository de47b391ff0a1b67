package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mfg-ops/ordrefab/models"
	"github.com/mfg-ops/ordrefab/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupOrderTest(t *testing.T) (*gorm.DB, testutil.Fixtures) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedFixtures(t, db)
	SetClock(f.Clock)
	t.Cleanup(func() { SetClock(nil) })
	return db, f
}

func setupTestRouter(user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, "/api/public/", testutil.MockAuthMiddleware(user))
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	response := decode(t, w)
	assert.False(t, response["success"].(bool))
	return response["error"].(map[string]interface{})["code"].(string)
}

func TestCreateOrder(t *testing.T) {
	_, f := setupOrderTest(t)

	valid := func() map[string]interface{} {
		return map[string]interface{}{
			"code":             "OF-100",
			"quantity":         4,
			"startDate":        "2024-01-15",
			"endDate":          "2024-01-18",
			"productId":        f.Product.ID,
			"productionLineId": f.Line.ID,
			"ownerId":          f.Planner.ID,
		}
	}

	tests := []struct {
		name           string
		user           *models.User
		mutate         func(map[string]interface{})
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Successfully create order as parametreur",
			user:           &f.Planner,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Fail to create order as default user",
			user:           &f.Viewer,
			expectedStatus: http.StatusForbidden,
			expectedError:  "INSUFFICIENT_ROLE",
		},
		{
			name:           "Fail with zero quantity",
			user:           &f.Planner,
			mutate:         func(b map[string]interface{}) { b["quantity"] = 0 },
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Fail with short code",
			user:           &f.Planner,
			mutate:         func(b map[string]interface{}) { b["code"] = "OF" },
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Fail with end before start",
			user:           &f.Planner,
			mutate:         func(b map[string]interface{}) { b["endDate"] = "2024-01-14" },
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Fail with malformed date",
			user:           &f.Planner,
			mutate:         func(b map[string]interface{}) { b["startDate"] = "15/01/2024" },
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			if tt.mutate != nil {
				tt.mutate(body)
			}

			w := doJSON(setupTestRouter(tt.user), http.MethodPost, "/api/v1/orders", body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())

			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorCode(t, w))
				return
			}
			data := decode(t, w)["data"].(map[string]interface{})
			assert.Equal(t, "OF-100", data["code"])
			assert.Equal(t, "EN_ATTENTE", data["status"])
			assert.Equal(t, "2024-01-15", data["startDate"])
			assert.Equal(t, float64(f.Planner.ID), data["ownerId"])
		})
	}
}

func TestCreateOrder_LineUnavailable(t *testing.T) {
	db, f := setupOrderTest(t)
	f.InsertOrder(t, db, "OF-1", models.StatusPending, "2024-01-01", "2024-01-05")

	w := doJSON(setupTestRouter(&f.Planner), http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"code":             "OF-2",
		"quantity":         1,
		"startDate":        "2024-01-05",
		"endDate":          "2024-01-06",
		"productId":        f.Product.ID,
		"productionLineId": f.Line.ID,
		"ownerId":          f.Planner.ID,
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	response := decode(t, w)
	errBody := response["error"].(map[string]interface{})
	assert.Equal(t, "LINE_UNAVAILABLE", errBody["code"])
	details := errBody["details"].([]interface{})
	require.Len(t, details, 1)
	assert.Equal(t, "OF-1", details[0].(map[string]interface{})["code"])
}

func TestListOrders(t *testing.T) {
	db, f := setupOrderTest(t)
	f.InsertOrder(t, db, "OF-1", models.StatusPending, "2024-01-20", "2024-01-22")
	f.InsertOrder(t, db, "OF-2", models.StatusInProgress, "2024-01-05", "2024-01-12")

	// every authenticated role may read
	w := doJSON(setupTestRouter(&f.Viewer), http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.True(t, response["success"].(bool))
	data := response["data"].([]interface{})
	require.Len(t, data, 2)
	first := data[0].(map[string]interface{})
	assert.Equal(t, "OF-1", first["code"])
	assert.Equal(t, "Line 1", first["productionLine"].(map[string]interface{})["name"])
	assert.Equal(t, "Widget", first["product"].(map[string]interface{})["name"])
}

func TestGetOrder(t *testing.T) {
	db, f := setupOrderTest(t)
	order := f.InsertOrder(t, db, "OF-1", models.StatusPending, "2024-01-20", "2024-01-22")
	router := setupTestRouter(&f.Viewer)

	w := doJSON(router, http.MethodGet, "/api/v1/orders/"+itoa(order.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OF-1", decode(t, w)["data"].(map[string]interface{})["code"])

	w = doJSON(router, http.MethodGet, "/api/v1/orders/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))

	w = doJSON(router, http.MethodGet, "/api/v1/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", errorCode(t, w))
}

func TestUpdateOrder(t *testing.T) {
	db, f := setupOrderTest(t)
	pending := f.InsertOrder(t, db, "OF-1", models.StatusPending, "2024-01-20", "2024-01-22")
	running := f.InsertOrder(t, db, "OF-2", models.StatusInProgress, "2024-01-05", "2024-01-09")
	router := setupTestRouter(&f.Planner)

	w := doJSON(router, http.MethodPut, "/api/v1/orders/"+itoa(pending.ID), map[string]interface{}{"quantity": 12})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(12), decode(t, w)["data"].(map[string]interface{})["quantity"])

	w = doJSON(router, http.MethodPut, "/api/v1/orders/"+itoa(running.ID), map[string]interface{}{"code": "OF-9"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "FIELD_LOCKED", errorCode(t, w))

	// end date of 2024-01-09 has passed: the sweep may finish it
	w = doJSON(router, http.MethodPut, "/api/v1/orders/"+itoa(running.ID), map[string]interface{}{"status": "TERMINEE"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "TERMINEE", decode(t, w)["data"].(map[string]interface{})["status"])

	w = doJSON(router, http.MethodPut, "/api/v1/orders/"+itoa(pending.ID), map[string]interface{}{"status": "FINI"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
}

func TestDeleteOrder(t *testing.T) {
	db, f := setupOrderTest(t)
	order := f.InsertOrder(t, db, "OF-1", models.StatusPending, "2024-01-20", "2024-01-22")

	w := doJSON(setupTestRouter(&f.Viewer), http.MethodDelete, "/api/v1/orders/"+itoa(order.ID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(setupTestRouter(&f.Planner), http.MethodDelete, "/api/v1/orders/"+itoa(order.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	db.Model(&models.ManufacturingOrder{}).Count(&count)
	assert.Zero(t, count)
}

func TestCancelOrder(t *testing.T) {
	db, f := setupOrderTest(t)
	running := f.InsertOrder(t, db, "OF-1", models.StatusInProgress, "2024-01-05", "2024-01-12")
	done := f.InsertOrder(t, db, "OF-2", models.StatusFinished, "2023-12-01", "2023-12-05")
	router := setupTestRouter(&f.Planner)

	w := doJSON(router, http.MethodPut, "/api/v1/orders/"+itoa(running.ID)+"/cancel", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.True(t, response["success"].(bool))
	assert.Equal(t, "ANNULE", response["order"].(map[string]interface{})["status"])

	w = doJSON(router, http.MethodPut, "/api/v1/orders/"+itoa(done.ID)+"/cancel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, w))
}

func TestStartOrderToday(t *testing.T) {
	db, f := setupOrderTest(t)
	free := f.InsertOrder(t, db, "OF-1", models.StatusPending, "2024-02-01", "2024-02-03")
	router := setupTestRouter(&f.Planner)

	w := doJSON(router, http.MethodPut, "/api/v1/orders/"+itoa(free.ID)+"/start-today", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.True(t, response["success"].(bool))
	order := response["order"].(map[string]interface{})
	assert.Equal(t, "EN_COURS", order["status"])
	assert.Equal(t, f.TodayStr, order["startDate"])
	assert.Equal(t, "2024-01-12", order["endDate"])

	// the started order now occupies the line until 2024-01-12
	busy := f.InsertOrder(t, db, "OF-2", models.StatusPending, "2024-03-01", "2024-03-01")
	w = doJSON(router, http.MethodPut, "/api/v1/orders/"+itoa(busy.ID)+"/start-today", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	response = decode(t, w)
	assert.Equal(t, true, response["needsNewDate"])
	assert.Equal(t, "2024-01-13", response["nextAvailableDate"])
	assert.NotContains(t, response, "order")
}

func TestStartOrderOnDate(t *testing.T) {
	db, f := setupOrderTest(t)
	order := f.InsertOrder(t, db, "OF-1", models.StatusPending, "2024-02-01", "2024-02-03")
	router := setupTestRouter(&f.Planner)

	w := doJSON(router, http.MethodPut, "/api/v1/orders/"+itoa(order.ID)+"/start-on-date", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPut, "/api/v1/orders/"+itoa(order.ID)+"/start-on-date?newStartDate=2024-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPut, "/api/v1/orders/"+itoa(order.ID)+"/start-on-date?newStartDate=2024-01-20", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	response := decode(t, w)
	assert.True(t, response["success"].(bool))
	started := response["order"].(map[string]interface{})
	assert.Equal(t, "EN_COURS", started["status"])
	assert.Equal(t, "2024-01-20", started["startDate"])
	assert.Equal(t, "2024-01-22", started["endDate"])
}

func TestNextAvailableDate(t *testing.T) {
	db, f := setupOrderTest(t)
	f.InsertOrder(t, db, "OF-1", models.StatusInProgress, "2024-01-05", "2024-01-11")
	order := f.InsertOrder(t, db, "OF-2", models.StatusPending, "2024-02-01", "2024-02-01")

	w := doJSON(setupTestRouter(&f.Viewer), http.MethodGet, "/api/v1/orders/"+itoa(order.ID)+"/next-available-date", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"nextAvailableDate":"2024-01-12"}`, w.Body.String())
}

func TestCheckAvailability(t *testing.T) {
	db, f := setupOrderTest(t)
	busy := f.InsertOrder(t, db, "OF-1", models.StatusPending, "2024-01-01", "2024-01-05")
	router := setupTestRouter(&f.Viewer)

	path := "/api/v1/orders/check-availability?lineId=" + itoa(f.Line.ID) + "&startDate=2024-01-03&endDate=2024-01-08"
	w := doJSON(router, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"available":false,"conflictingOrders":[{"id":`+itoa(busy.ID)+`,"code":"OF-1","startDate":"2024-01-01","endDate":"2024-01-05"}]}`, w.Body.String())

	w = doJSON(router, http.MethodGet, path+"&excludeOrderId="+itoa(busy.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"available":true,"conflictingOrders":[]}`, w.Body.String())

	w = doJSON(router, http.MethodGet, "/api/v1/orders/check-availability?lineId=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListStatuses(t *testing.T) {
	_, f := setupOrderTest(t)

	w := doJSON(setupTestRouter(&f.Viewer), http.MethodGet, "/api/v1/orders/statuses", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":["EN_ATTENTE","EN_COURS","TERMINEE","ANNULE"]}`, w.Body.String())
}
