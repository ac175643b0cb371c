package models

import (
	"time"

	"gorm.io/gorm"
)

// Roles a user can hold. Authorization decisions compare against these strings.
const (
	RoleAdmin     = "admin"
	RoleTeamAdmin = "team_admin"
	RoleEmployee  = "employee"
)

// Account statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// User represents an account in the workspace
type User struct {
	gorm.Model

	// Authentication fields
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	TokenVersion int    `gorm:"default:0" json:"-"`

	// Profile information
	FullName    string     `gorm:"not null" json:"full_name"`
	Role        string     `gorm:"type:varchar(20);not null;default:'employee';index" json:"role"` // admin, team_admin, employee
	Status      string     `gorm:"type:varchar(20);not null;default:'active'" json:"status"`       // active, inactive
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	// Team placement. An employee belongs to at most one team at a time.
	TeamID        *uint `gorm:"index" json:"team_id"`
	ParentAdminID *uint `gorm:"index" json:"parent_admin_id"` // admin who onboarded or placed this user

	// Relations
	Team *Team `gorm:"foreignKey:TeamID" json:"team,omitempty"`
}

// IsActive reports whether the account may log in and receive work
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// ValidRole reports whether role is one of the known roles
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleTeamAdmin, RoleEmployee:
		return true
	}
	return false
}
