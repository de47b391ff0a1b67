package models

import (
	"time"

	"gorm.io/gorm"
)

// Role grants navigation and write permissions
type Role string

const (
	RoleDefault     Role = "DEFAULT"
	RoleParametreur Role = "PARAMETREUR"
	RoleAdmin       Role = "ADMIN"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleDefault || r == RoleParametreur || r == RoleAdmin
}

// CanManageEntities reports whether the role may write orders and catalog entities
func (r Role) CanManageEntities() bool {
	return r == RoleParametreur || r == RoleAdmin
}

// CanManageUsers reports whether the role may administer other users
func (r Role) CanManageUsers() bool {
	return r == RoleAdmin
}

// User represents an operator account
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;not null;size:64" json:"username"` // JWT 'sub' claim
	FirstName string         `gorm:"size:64" json:"firstName,omitempty"`
	Email     string         `gorm:"size:128" json:"email,omitempty"`
	Role      Role           `gorm:"not null;size:16;default:'DEFAULT'" json:"role"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}
