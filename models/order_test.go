package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderTableName(t *testing.T) {
	assert.Equal(t, "manufacturing_orders", ManufacturingOrder{}.TableName())
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{"EN_ATTENTE", StatusPending, false},
		{"en_cours", StatusInProgress, false},
		{" TERMINEE ", StatusFinished, false},
		{"ANNULE", StatusCancelled, false},
		{"ANNULEE", "", true},
		{"FINI", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseStatus(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusFinished.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestOrderJSONRejectsUnknownStatus(t *testing.T) {
	var order ManufacturingOrder
	err := json.Unmarshal([]byte(`{"code":"OF-1","status":"FINI"}`), &order)
	assert.Error(t, err)
}

func TestOrderJSONShape(t *testing.T) {
	owner := uint(7)
	order := ManufacturingOrder{
		ID:               3,
		Code:             "OF-3",
		Status:           StatusPending,
		Quantity:         10,
		StartDate:        MustParseDate("2024-01-01"),
		EndDate:          MustParseDate("2024-01-05"),
		ProductID:        2,
		ProductionLineID: 1,
		OwnerID:          &owner,
	}

	data, err := json.Marshal(order)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "OF-3", raw["code"])
	assert.Equal(t, "EN_ATTENTE", raw["status"])
	assert.Equal(t, "2024-01-01", raw["startDate"])
	assert.Equal(t, "2024-01-05", raw["endDate"])
	assert.Equal(t, float64(1), raw["productionLineId"])
	assert.Equal(t, float64(7), raw["ownerId"])
	assert.NotContains(t, raw, "owner")
}

func TestOrderSummaryString(t *testing.T) {
	summary := OrderSummary{
		Code:      "OF-1",
		StartDate: MustParseDate("2024-01-01"),
		EndDate:   MustParseDate("2024-01-05"),
	}
	assert.Equal(t, "OF-1 (2024-01-01 - 2024-01-05)", summary.String())
}

func TestOrderDurationDays(t *testing.T) {
	order := ManufacturingOrder{
		StartDate: NewDate(2024, time.February, 27),
		EndDate:   NewDate(2024, time.March, 2),
	}
	assert.Equal(t, 4, order.DurationDays())
}

func TestStartTodayResponseResult(t *testing.T) {
	proposed := MustParseDate("2024-02-01")

	t.Run("started", func(t *testing.T) {
		resp := StartTodayResponse{Success: true, Order: &ManufacturingOrder{ID: 4, Status: StatusInProgress}}
		result, err := resp.Result(4)
		require.NoError(t, err)
		started, ok := result.(Started)
		require.True(t, ok)
		assert.Equal(t, StatusInProgress, started.Order.Status)
	})

	t.Run("needs new date", func(t *testing.T) {
		resp := StartTodayResponse{NeedsNewDate: true, NextAvailableDate: &proposed, Message: "busy"}
		result, err := resp.Result(4)
		require.NoError(t, err)
		proposal, ok := result.(RescheduleProposal)
		require.True(t, ok)
		assert.Equal(t, uint(4), proposal.OrderID)
		assert.Equal(t, "2024-02-01", proposal.ProposedDate.String())
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := StartTodayResponse{Success: true}.Result(4)
		assert.ErrorIs(t, err, ErrMalformedStartResponse)

		_, err = StartTodayResponse{NeedsNewDate: true}.Result(4)
		assert.ErrorIs(t, err, ErrMalformedStartResponse)
	})
}

func TestUpdateOrderRequestOmitsUnsetFields(t *testing.T) {
	data, err := json.Marshal(StatusPatch(StatusInProgress))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"EN_COURS"}`, string(data))
	assert.True(t, UpdateOrderRequest{}.Empty())
}

func TestAvailabilityQueryReady(t *testing.T) {
	start := MustParseDate("2024-01-01")
	end := MustParseDate("2024-01-05")

	assert.True(t, AvailabilityQuery{LineID: 1, StartDate: start, EndDate: end}.Ready())
	assert.False(t, AvailabilityQuery{StartDate: start, EndDate: end}.Ready())
	assert.False(t, AvailabilityQuery{LineID: 1, StartDate: start}.Ready())
	assert.False(t, AvailabilityQuery{LineID: 1, StartDate: end, EndDate: start}.Ready())
}
