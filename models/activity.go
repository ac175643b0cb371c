package models

import "time"

// Activity action types written by the application. The column is free-form.
const (
	ActionTaskCreated   = "task_created"
	ActionTaskAssigned  = "task_assigned"
	ActionStatusUpdate  = "status_update"
	ActionTaskCompleted = "task_completed"
	ActionSubtaskAdded  = "subtask_added"
	ActionTaskArchived  = "task_archived"
	ActionTaskApproved  = "task_approved"
	ActionTaskOverdue   = "task_overdue"
)

// ActivityLog is an append-only audit entry
type ActivityLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	ActionType string    `gorm:"type:varchar(50);not null;index" json:"action_type"`
	Details    string    `gorm:"type:text" json:"details"`
	TaskID     *uint     `gorm:"index" json:"task_id,omitempty"`
	OldStatus  *string   `gorm:"type:varchar(20)" json:"old_status,omitempty"`
	NewStatus  *string   `gorm:"type:varchar(20)" json:"new_status,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`

	// Relations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Task *Task `gorm:"foreignKey:TaskID" json:"task,omitempty"`
}

// UserLogin records a successful login; used as an activity feed source
type UserLogin struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	LoginTime time.Time `gorm:"not null;index" json:"login_time"`
	IPAddress string    `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent string    `gorm:"type:varchar(255)" json:"user_agent"`

	// Relations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
