package models

import "time"

// Team groups employees under one or more team admins
type Team struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Name               string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Description        string    `gorm:"type:text" json:"description"`
	PrimaryTeamAdminID *uint     `gorm:"index" json:"primary_team_admin_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// Relations
	PrimaryTeamAdmin *User `gorm:"foreignKey:PrimaryTeamAdminID" json:"primary_team_admin,omitempty"`
	Members          []User `gorm:"foreignKey:TeamID" json:"members,omitempty"`
}

// TeamAdminAssignment records which team admin manages which team
type TeamAdminAssignment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TeamAdminID uint      `gorm:"not null;uniqueIndex:uk_team_admin_team" json:"team_admin_id"`
	TeamID      uint      `gorm:"not null;uniqueIndex:uk_team_admin_team;index" json:"team_id"`
	AssignedBy  *uint     `json:"assigned_by"`
	AssignedAt  time.Time `gorm:"not null" json:"assigned_at"`

	// Relations
	TeamAdmin *User `gorm:"foreignKey:TeamAdminID" json:"team_admin,omitempty"`
	Team      *Team `gorm:"foreignKey:TeamID" json:"team,omitempty"`
}

func (TeamAdminAssignment) TableName() string { return "team_admin_teams" }

// Capability names one of the per-team permission flags
type Capability string

const (
	CanAssign       Capability = "can_assign"
	CanEdit         Capability = "can_edit"
	CanArchive      Capability = "can_archive"
	CanAddMembers   Capability = "can_add_members"
	CanViewReports  Capability = "can_view_reports"
	CanSendMessages Capability = "can_send_messages"
)

// PermissionSet holds the six capability flags granted on a team
type PermissionSet struct {
	CanAssign       bool `gorm:"not null" json:"can_assign"`
	CanEdit         bool `gorm:"not null" json:"can_edit"`
	CanArchive      bool `gorm:"not null" json:"can_archive"`
	CanAddMembers   bool `gorm:"not null" json:"can_add_members"`
	CanViewReports  bool `gorm:"not null" json:"can_view_reports"`
	CanSendMessages bool `gorm:"not null" json:"can_send_messages"`
}

// AllPermissions is the grant written whenever a team admin is attached to a team
func AllPermissions() PermissionSet {
	return PermissionSet{
		CanAssign:       true,
		CanEdit:         true,
		CanArchive:      true,
		CanAddMembers:   true,
		CanViewReports:  true,
		CanSendMessages: true,
	}
}

// Has reports whether the capability is granted
func (p PermissionSet) Has(c Capability) bool {
	switch c {
	case CanAssign:
		return p.CanAssign
	case CanEdit:
		return p.CanEdit
	case CanArchive:
		return p.CanArchive
	case CanAddMembers:
		return p.CanAddMembers
	case CanViewReports:
		return p.CanViewReports
	case CanSendMessages:
		return p.CanSendMessages
	}
	return false
}

// Columns returns the flags keyed by column name, used for updates
func (p PermissionSet) Columns() map[string]interface{} {
	return map[string]interface{}{
		string(CanAssign):       p.CanAssign,
		string(CanEdit):         p.CanEdit,
		string(CanArchive):      p.CanArchive,
		string(CanAddMembers):   p.CanAddMembers,
		string(CanViewReports):  p.CanViewReports,
		string(CanSendMessages): p.CanSendMessages,
	}
}

// TeamAdminPermission stores one row per (team admin, team) pair
type TeamAdminPermission struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	UserID        uint `gorm:"not null;uniqueIndex:uk_permission_user_team" json:"user_id"`
	TeamID        uint `gorm:"not null;uniqueIndex:uk_permission_user_team;index" json:"team_id"`
	PermissionSet `gorm:"embedded"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (TeamAdminPermission) TableName() string { return "team_admin_permissions" }
