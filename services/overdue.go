package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"teamdesk/models"
)

// FlagOverdue appends one task_overdue entry for every open task whose deadline
// day has passed and that has not been flagged before. It returns how many
// tasks were flagged.
func (s *TaskStore) FlagOverdue(ctx context.Context) (int, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	flagged := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tasks []models.Task
		err := tx.Where("archived = ? AND status <> ? AND deadline IS NOT NULL AND deadline < ?", false, models.TaskCompleted, today).
			Where("id NOT IN (?)", tx.Model(&models.ActivityLog{}).
				Select("task_id").
				Where("action_type = ? AND task_id IS NOT NULL", models.ActionTaskOverdue)).
			Order("id").
			Find(&tasks).Error
		if err != nil {
			return err
		}

		for i := range tasks {
			task := &tasks[i]
			details := fmt.Sprintf("Task %q passed its deadline of %s", task.Title, task.Deadline.Format("2006-01-02"))
			if err := appendActivity(tx, task.CreatedBy, models.ActionTaskOverdue, details, &task.ID, nil, nil); err != nil {
				return err
			}
			flagged++
		}
		return nil
	})
	if err != nil {
		return 0, Persistence("flagging overdue tasks", err)
	}
	return flagged, nil
}
