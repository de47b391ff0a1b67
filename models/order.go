package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Status is the lifecycle state of a manufacturing order
type Status string

const (
	StatusPending    Status = "EN_ATTENTE"
	StatusInProgress Status = "EN_COURS"
	StatusFinished   Status = "TERMINEE"
	StatusCancelled  Status = "ANNULE"
)

// Statuses lists every status in lifecycle order
var Statuses = []Status{StatusPending, StatusInProgress, StatusFinished, StatusCancelled}

// Valid reports whether s belongs to the status vocabulary
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusFinished, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition or edit is possible
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// ParseStatus validates a raw status value
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status %q", raw)
	}
	return s, nil
}

// UnmarshalJSON rejects values outside the status vocabulary
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}
	if raw == "" {
		*s = ""
		return nil
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ManufacturingOrder represents a manufacturing order (ordre de fabrication)
// scheduled on a production line
type ManufacturingOrder struct {
	ID               uint            `gorm:"primaryKey" json:"id,omitempty"`
	Code             string          `gorm:"not null;size:64;index" json:"code"`
	Status           Status          `gorm:"not null;size:16;default:'EN_ATTENTE';index" json:"status"`
	Quantity         int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	StartDate        Date            `gorm:"type:date;not null" json:"startDate"`
	EndDate          Date            `gorm:"type:date;not null" json:"endDate"`
	ProductID        uint            `gorm:"not null;index" json:"productId"`
	Product          *Product        `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	ProductionLineID uint            `gorm:"not null;index" json:"productionLineId"`
	ProductionLine   *ProductionLine `gorm:"foreignKey:ProductionLineID" json:"productionLine,omitempty"`
	OwnerID          *uint           `gorm:"index" json:"ownerId,omitempty"` // set once at creation
	Owner            *User           `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the ManufacturingOrder model
func (ManufacturingOrder) TableName() string {
	return "manufacturing_orders"
}

// DurationDays is the number of days between start and end
func (o ManufacturingOrder) DurationDays() int {
	return o.StartDate.DaysUntil(o.EndDate)
}

// Summary returns the short form used in conflict reports
func (o ManufacturingOrder) Summary() OrderSummary {
	return OrderSummary{
		ID:        o.ID,
		Code:      o.Code,
		StartDate: o.StartDate,
		EndDate:   o.EndDate,
	}
}

// HasOwner reports whether the record carries any owner information
func (o ManufacturingOrder) HasOwner() bool {
	return o.OwnerID != nil || o.Owner != nil
}

// OrderSummary identifies an order and its scheduled window
type OrderSummary struct {
	ID        uint   `json:"id,omitempty"`
	Code      string `json:"code"`
	StartDate Date   `json:"startDate"`
	EndDate   Date   `json:"endDate"`
}

// String renders the summary as "CODE (START - END)"
func (s OrderSummary) String() string {
	return fmt.Sprintf("%s (%s - %s)", s.Code, s.StartDate, s.EndDate)
}
