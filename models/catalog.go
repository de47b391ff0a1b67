package models

import (
	"time"

	"gorm.io/gorm"
)

// ProductionLine is a schedulable manufacturing resource
type ProductionLine struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null;uniqueIndex;size:128" json:"name"`
	CreatedAt time.Time      `json:"-"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the ProductionLine model
func (ProductionLine) TableName() string {
	return "production_lines"
}

// Product is an item manufacturing orders produce
type Product struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Name             string          `gorm:"not null;size:128" json:"name"`
	Type             string          `gorm:"size:64" json:"type,omitempty"`
	ProductionLineID *uint           `gorm:"index" json:"productionLineId,omitempty"` // default line for the product
	ProductionLine   *ProductionLine `gorm:"foreignKey:ProductionLineID" json:"-"`
	CreatedAt        time.Time       `json:"-"`
	UpdatedAt        time.Time       `json:"-"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "products"
}
