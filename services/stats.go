package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"teamdesk/models"
)

// DashboardStats summarises the tasks an actor can see
type DashboardStats struct {
	ByStatus       map[string]int64 `json:"by_status"`
	Active         int64            `json:"active"`
	Archived       int64            `json:"archived"`
	Overdue        int64            `json:"overdue"`
	UnreadMessages int64            `json:"unread_messages"`
}

// Stats counts visible tasks by status plus the actor's unread messages
func (s *TaskStore) Stats(ctx context.Context, actor Actor) (*DashboardStats, error) {
	db := s.db.WithContext(ctx)

	var teamIDs []uint
	if actor.IsTeamAdmin() {
		ids, err := managedTeamIDs(ctx, s.db, actor.UserID)
		if err != nil {
			return nil, Persistence("loading managed teams", err)
		}
		teamIDs = ids
	}
	tasks := func() *gorm.DB {
		q := db.Model(&models.Task{})
		switch {
		case actor.IsAdmin():
		case actor.IsTeamAdmin():
			if len(teamIDs) == 0 {
				return q.Where("1 = 0")
			}
			q = q.Where("team_id IN ?", teamIDs)
		default:
			q = q.Where("assigned_to = ?", actor.UserID)
		}
		return q
	}

	stats := &DashboardStats{ByStatus: map[string]int64{
		models.TaskToDo:          0,
		models.TaskInProgress:    0,
		models.TaskNeedsApproval: 0,
		models.TaskCompleted:     0,
	}}

	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	if err := tasks().
		Select("status, COUNT(*) AS total").
		Where("archived = ?", false).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, Persistence("counting tasks", err)
	}
	for _, r := range rows {
		stats.ByStatus[r.Status] = r.Total
		stats.Active += r.Total
	}

	if err := tasks().Where("archived = ?", true).Count(&stats.Archived).Error; err != nil {
		return nil, Persistence("counting archived tasks", err)
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := tasks().
		Where("archived = ? AND status <> ? AND deadline IS NOT NULL AND deadline < ?", false, models.TaskCompleted, today).
		Count(&stats.Overdue).Error; err != nil {
		return nil, Persistence("counting overdue tasks", err)
	}

	if err := db.Model(&models.Message{}).
		Where("recipient_id = ? AND read_status = ?", actor.UserID, models.MessageUnread).
		Count(&stats.UnreadMessages).Error; err != nil {
		return nil, Persistence("counting unread messages", err)
	}
	return stats, nil
}
