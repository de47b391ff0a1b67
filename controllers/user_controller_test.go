package controllers

import (
	"net/http"
	"testing"

	"github.com/mfg-ops/ordrefab/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMyProfile_Success(t *testing.T) {
	_, f := setupOrderTest(t)

	w := doJSON(setupTestRouter(&f.Planner), http.MethodGet, "/api/v1/users/me", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "planner", data["username"])
	assert.Equal(t, "PARAMETREUR", data["role"])
	assert.Equal(t, float64(f.Planner.ID), data["id"])
}

func TestUpdateMyProfile_Success(t *testing.T) {
	db, f := setupOrderTest(t)
	user := f.Viewer

	w := doJSON(setupTestRouter(&user), http.MethodPut, "/api/v1/users/me", map[string]interface{}{
		"firstName": "Victor",
		"email":     "victor@example.com",
		"role":      "ADMIN",
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stored models.User
	require.NoError(t, db.First(&stored, f.Viewer.ID).Error)
	assert.Equal(t, "Victor", stored.FirstName)
	assert.Equal(t, "victor@example.com", stored.Email)
	assert.Equal(t, models.RoleDefault, stored.Role, "role cannot be self-assigned")
}

func TestUpdateMyProfile_InvalidEmail(t *testing.T) {
	_, f := setupOrderTest(t)

	w := doJSON(setupTestRouter(&f.Viewer), http.MethodPut, "/api/v1/users/me", map[string]interface{}{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
}

func TestUpdateMyProfile_EmptyUpdate(t *testing.T) {
	_, f := setupOrderTest(t)

	w := doJSON(setupTestRouter(&f.Viewer), http.MethodPut, "/api/v1/users/me", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NO_UPDATES", errorCode(t, w))
}
