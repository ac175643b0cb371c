package models

import "time"

// Task priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task statuses. Archival is tracked separately by Task.Archived.
const (
	TaskToDo          = "to_do"
	TaskInProgress    = "in_progress"
	TaskNeedsApproval = "needs_approval"
	TaskCompleted     = "completed"
)

// Subtask statuses. "pending" is accepted as a legacy spelling of to_do.
const (
	SubtaskToDo    = "to_do"
	SubtaskPending = "pending"
	SubtaskDone    = "done"
)

// Task is a unit of work owned by a team and assigned to an employee
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"type:varchar(255);not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	AssignedTo  uint       `gorm:"not null;index" json:"assigned_to"`
	CreatedBy   uint       `gorm:"not null;index" json:"created_by"`
	Priority    string     `gorm:"type:varchar(10);not null;default:'medium'" json:"priority"`                // low, medium, high
	Status      string     `gorm:"type:varchar(20);not null;default:'to_do';index" json:"status"`             // to_do, in_progress, needs_approval, completed
	Archived    bool       `gorm:"not null;default:false;index" json:"archived"`                              // excluded from active views
	Deadline    *time.Time `json:"deadline,omitempty"`
	TeamID      *uint      `gorm:"index" json:"team_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relations
	Assignee *User     `gorm:"foreignKey:AssignedTo" json:"assignee,omitempty"`
	Creator  *User     `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	Team     *Team     `gorm:"foreignKey:TeamID" json:"team,omitempty"`
	Subtasks []Subtask `gorm:"foreignKey:TaskID" json:"subtasks,omitempty"`
}

// Subtask is a checklist item under a task
type Subtask struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TaskID    uint      `gorm:"not null;index" json:"task_id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Status    string    `gorm:"type:varchar(20);not null;default:'to_do'" json:"status"` // to_do, done
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Done reports whether the subtask counts as completed
func (s *Subtask) Done() bool {
	return s.Status == SubtaskDone
}

// ValidPriority reports whether p is a known priority
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ValidTaskStatus reports whether s is a known task status
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskToDo, TaskInProgress, TaskNeedsApproval, TaskCompleted:
		return true
	}
	return false
}

// StatusFromSubtasks derives a task status from its subtask completion ratio
func StatusFromSubtasks(done, total int64) string {
	switch {
	case done <= 0:
		return TaskToDo
	case done < total:
		return TaskInProgress
	default:
		return TaskCompleted
	}
}
