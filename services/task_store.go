package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"teamdesk/models"
)

// TaskStore creates tasks inside a team and keeps task status in step with subtasks
type TaskStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db, now: time.Now}
}

type CreateTaskInput struct {
	Title       string   `json:"title" validate:"required,max=255"`
	Description string   `json:"description" validate:"max=5000"`
	AssignedTo  uint     `json:"assigned_to" validate:"required"`
	Priority    string   `json:"priority" validate:"omitempty,oneof=low medium high"`
	Deadline    string   `json:"deadline" validate:"omitempty,datetime=2006-01-02"`
	Subtasks    []string `json:"subtasks"`
}

type TaskFilter struct {
	Status          string
	AssignedTo      *uint
	TeamID          *uint
	IncludeArchived bool
	Page            int
	Limit           int
}

// UserTasks is the payload behind the dashboard's per-user drill-down
type UserTasks struct {
	Tasks      []models.Task        `json:"tasks"`
	Activities []models.ActivityLog `json:"activities"`
}

// CreateTask inserts a to_do task with its subtasks and logs its creation.
// Team admins may only assign employees on teams they manage.
func (s *TaskStore) CreateTask(ctx context.Context, actor Actor, in CreateTaskInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, Validation("Task title is required")
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !models.ValidPriority(priority) {
		return nil, Validation("Invalid priority %q", in.Priority)
	}
	var deadline *time.Time
	if in.Deadline != "" {
		d, err := time.ParseInLocation("2006-01-02", in.Deadline, s.now().Location())
		if err != nil {
			return nil, Validation("Deadline must be a date formatted YYYY-MM-DD")
		}
		deadline = &d
	}

	assignee, err := s.resolveAssignee(ctx, actor, in.AssignedTo)
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		AssignedTo:  assignee.ID,
		CreatedBy:   actor.UserID,
		Priority:    priority,
		Status:      models.TaskToDo,
		Deadline:    deadline,
		TeamID:      assignee.TeamID,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return err
		}
		for _, st := range in.Subtasks {
			st = strings.TrimSpace(st)
			if st == "" {
				continue
			}
			sub := models.Subtask{TaskID: task.ID, Title: st, Status: models.SubtaskToDo}
			if err := tx.Create(&sub).Error; err != nil {
				return err
			}
			task.Subtasks = append(task.Subtasks, sub)
		}
		details := fmt.Sprintf("Created task %q and assigned it to %s", task.Title, assignee.FullName)
		return appendActivity(tx, actor.UserID, models.ActionTaskCreated, details, &task.ID, nil, nil)
	})
	if err != nil {
		return nil, Persistence("creating task", err)
	}
	return task, nil
}

// UpdateTaskStatus applies an explicit status change from the task dropdown
func (s *TaskStore) UpdateTaskStatus(ctx context.Context, actor Actor, taskID uint, status string) (*models.Task, error) {
	if !models.ValidTaskStatus(status) {
		return nil, Validation("Invalid status %q", status)
	}
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ok, err := s.canEdit(ctx, actor, task)
	if err != nil {
		return nil, Persistence("checking permissions", err)
	}
	if !ok {
		return nil, Noop("Unable to update task")
	}
	if actor.IsEmployee() && status == models.TaskCompleted {
		return nil, Validation("Completed status requires approval; submit the task for approval instead")
	}
	if task.Status == status {
		return task, nil
	}

	old := task.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(task).Update("status", status).Error; err != nil {
			return err
		}
		return logStatusChange(tx, actor.UserID, task, old, status)
	})
	if err != nil {
		return nil, Persistence("updating task status", err)
	}
	task.Status = status
	return task, nil
}

// AddSubtask appends a to_do subtask and recomputes the parent task status
func (s *TaskStore) AddSubtask(ctx context.Context, actor Actor, taskID uint, title string) (*models.Subtask, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, Validation("Subtask title is required")
	}
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ok, err := s.canEdit(ctx, actor, task)
	if err != nil {
		return nil, Persistence("checking permissions", err)
	}
	if !ok {
		return nil, Noop("Unable to add subtask")
	}

	sub := &models.Subtask{TaskID: task.ID, Title: title, Status: models.SubtaskToDo}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		details := fmt.Sprintf("Added subtask %q to %q", sub.Title, task.Title)
		if err := appendActivity(tx, actor.UserID, models.ActionSubtaskAdded, details, &task.ID, nil, nil); err != nil {
			return err
		}
		return recomputeTaskStatus(tx, actor.UserID, task)
	})
	if err != nil {
		return nil, Persistence("adding subtask", err)
	}
	return sub, nil
}

// ToggleSubtask marks a subtask done or not done and then derives the parent
// task status from the subtask completion ratio, overwriting any manual status.
func (s *TaskStore) ToggleSubtask(ctx context.Context, actor Actor, subtaskID uint, done bool) (*models.Task, error) {
	var sub models.Subtask
	if err := s.db.WithContext(ctx).First(&sub, subtaskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("Subtask not found")
		}
		return nil, Persistence("loading subtask", err)
	}
	task, err := s.loadTask(ctx, sub.TaskID)
	if err != nil {
		return nil, err
	}
	ok, err := s.canEdit(ctx, actor, task)
	if err != nil {
		return nil, Persistence("checking permissions", err)
	}
	if !ok {
		return nil, Noop("Unable to update subtask")
	}

	status := models.SubtaskToDo
	if done {
		status = models.SubtaskDone
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&sub).Update("status", status).Error; err != nil {
			return err
		}
		return recomputeTaskStatus(tx, actor.UserID, task)
	})
	if err != nil {
		return nil, Persistence("updating subtask", err)
	}
	return task, nil
}

// ApproveTask moves a needs_approval task on one of the actor's teams to completed
func (s *TaskStore) ApproveTask(ctx context.Context, actor Actor, taskID uint) (*models.Task, error) {
	var teamIDs []uint
	switch {
	case actor.IsAdmin():
	case actor.IsTeamAdmin():
		ids, err := managedTeamIDs(ctx, s.db, actor.UserID)
		if err != nil {
			return nil, Persistence("loading managed teams", err)
		}
		if len(ids) == 0 {
			return nil, Noop("Task is not awaiting your approval")
		}
		teamIDs = ids
	default:
		return nil, Noop("Task is not awaiting your approval")
	}

	var task models.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Task{}).Where("id = ? AND status = ?", taskID, models.TaskNeedsApproval)
		if teamIDs != nil {
			q = q.Where("team_id IN ?", teamIDs)
		}
		res := q.Update("status", models.TaskCompleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return Noop("Task is not awaiting your approval")
		}
		if err := tx.First(&task, taskID).Error; err != nil {
			return err
		}
		old, next := models.TaskNeedsApproval, models.TaskCompleted
		details := fmt.Sprintf("Approved task %q", task.Title)
		return appendActivity(tx, actor.UserID, models.ActionTaskApproved, details, &task.ID, &old, &next)
	})
	if err != nil {
		return nil, Persistence("approving task", err)
	}
	return &task, nil
}

// ArchiveTask flags a task archived whatever its status, if the actor holds the
// archive capability on the task's team
func (s *TaskStore) ArchiveTask(ctx context.Context, actor Actor, taskID uint) error {
	var teamIDs []uint
	switch {
	case actor.IsAdmin():
	case actor.IsTeamAdmin():
		ids, err := teamsWithCapability(ctx, s.db, actor.UserID, models.CanArchive)
		if err != nil {
			return Persistence("checking permissions", err)
		}
		if len(ids) == 0 {
			return Noop("Unable to archive task")
		}
		teamIDs = ids
	default:
		return Noop("Unable to archive task")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Task{}).Where("id = ? AND archived = ?", taskID, false)
		if teamIDs != nil {
			q = q.Where("team_id IN ?", teamIDs)
		}
		res := q.Update("archived", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return Noop("Unable to archive task")
		}
		var task models.Task
		if err := tx.First(&task, taskID).Error; err != nil {
			return err
		}
		details := fmt.Sprintf("Archived task %q", task.Title)
		return appendActivity(tx, actor.UserID, models.ActionTaskArchived, details, &task.ID, nil, nil)
	})
	if err != nil {
		return Persistence("archiving task", err)
	}
	return nil
}

// ListTasks returns the tasks visible to the actor, newest first
func (s *TaskStore) ListTasks(ctx context.Context, actor Actor, f TaskFilter) ([]models.Task, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Task{})
	switch {
	case actor.IsAdmin():
	case actor.IsTeamAdmin():
		ids, err := managedTeamIDs(ctx, s.db, actor.UserID)
		if err != nil {
			return nil, 0, Persistence("loading managed teams", err)
		}
		if len(ids) == 0 {
			return []models.Task{}, 0, nil
		}
		query = query.Where("team_id IN ?", ids)
	default:
		query = query.Where("assigned_to = ?", actor.UserID)
	}

	if !f.IncludeArchived {
		query = query.Where("archived = ?", false)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *f.AssignedTo)
	}
	if f.TeamID != nil {
		query = query.Where("team_id = ?", *f.TeamID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, Persistence("counting tasks", err)
	}

	page, limit := normalizePage(f.Page, f.Limit)
	var tasks []models.Task
	err := query.Preload("Assignee").Preload("Team").Preload("Subtasks").
		Order("created_at desc, id desc").
		Offset((page - 1) * limit).Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, Persistence("loading tasks", err)
	}
	return tasks, total, nil
}

// GetTask returns a single task the actor can see
func (s *TaskStore) GetTask(ctx context.Context, actor Actor, taskID uint) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).
		Preload("Assignee").Preload("Creator").Preload("Team").
		Preload("Subtasks", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		First(&task, taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("Task not found")
	}
	if err != nil {
		return nil, Persistence("loading task", err)
	}
	visible, err := s.canView(ctx, actor, &task)
	if err != nil {
		return nil, Persistence("checking permissions", err)
	}
	if !visible {
		return nil, NotFound("Task not found")
	}
	return &task, nil
}

// UserTasks returns a user's active tasks and their latest activity entries
func (s *TaskStore) UserTasks(ctx context.Context, actor Actor, userID uint) (*UserTasks, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("User not found")
		}
		return nil, Persistence("loading user", err)
	}

	switch {
	case actor.IsAdmin():
	case actor.IsTeamAdmin():
		ids, err := managedTeamIDs(ctx, s.db, actor.UserID)
		if err != nil {
			return nil, Persistence("loading managed teams", err)
		}
		if user.TeamID == nil || !containsID(ids, *user.TeamID) {
			return nil, NotFound("User not found")
		}
	default:
		if actor.UserID != userID {
			return nil, NotFound("User not found")
		}
	}

	out := &UserTasks{}
	if err := db.Preload("Subtasks").
		Where("assigned_to = ? AND archived = ?", userID, false).
		Order("created_at desc").
		Find(&out.Tasks).Error; err != nil {
		return nil, Persistence("loading tasks", err)
	}
	if err := db.Preload("Task").
		Where("user_id = ?", userID).
		Order("created_at desc").Limit(20).
		Find(&out.Activities).Error; err != nil {
		return nil, Persistence("loading activity", err)
	}
	return out, nil
}

func (s *TaskStore) resolveAssignee(ctx context.Context, actor Actor, userID uint) (*models.User, error) {
	db := s.db.WithContext(ctx)
	var assignee models.User
	switch {
	case actor.IsTeamAdmin():
		teamIDs, err := teamsWithCapability(ctx, s.db, actor.UserID, models.CanAssign)
		if err != nil {
			return nil, Persistence("checking permissions", err)
		}
		if len(teamIDs) == 0 {
			return nil, Validation("You can only assign tasks within your team")
		}
		err = db.Where("id = ? AND role = ? AND status = ? AND team_id IN ?",
			userID, models.RoleEmployee, models.StatusActive, teamIDs).First(&assignee).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Validation("You can only assign tasks within your team")
		}
		if err != nil {
			return nil, Persistence("loading assignee", err)
		}
	case actor.IsAdmin():
		err := db.Where("id = ? AND role = ? AND status = ?", userID, models.RoleEmployee, models.StatusActive).First(&assignee).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Reference("Assignee must be an active employee")
		}
		if err != nil {
			return nil, Persistence("loading assignee", err)
		}
	default:
		return nil, Noop("Only admins and team admins can create tasks")
	}
	return &assignee, nil
}

func (s *TaskStore) loadTask(ctx context.Context, taskID uint) (*models.Task, error) {
	var task models.Task
	if err := s.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("Task not found")
		}
		return nil, Persistence("loading task", err)
	}
	return &task, nil
}

// canEdit allows admins, team admins holding can_edit on the task's team, and the assignee
func (s *TaskStore) canEdit(ctx context.Context, actor Actor, task *models.Task) (bool, error) {
	switch {
	case actor.IsAdmin():
		return true, nil
	case actor.IsTeamAdmin():
		if task.TeamID == nil {
			return false, nil
		}
		ids, err := teamsWithCapability(ctx, s.db, actor.UserID, models.CanEdit)
		if err != nil {
			return false, err
		}
		return containsID(ids, *task.TeamID), nil
	default:
		return task.AssignedTo == actor.UserID, nil
	}
}

func (s *TaskStore) canView(ctx context.Context, actor Actor, task *models.Task) (bool, error) {
	switch {
	case actor.IsAdmin():
		return true, nil
	case actor.IsTeamAdmin():
		if task.TeamID == nil {
			return false, nil
		}
		ids, err := managedTeamIDs(ctx, s.db, actor.UserID)
		if err != nil {
			return false, err
		}
		return containsID(ids, *task.TeamID), nil
	default:
		return task.AssignedTo == actor.UserID, nil
	}
}

// recomputeTaskStatus derives the task status from its subtasks and writes it
// when it differs. Tasks without subtasks keep their status.
func recomputeTaskStatus(tx *gorm.DB, actorID uint, task *models.Task) error {
	var total, done int64
	if err := tx.Model(&models.Subtask{}).Where("task_id = ?", task.ID).Count(&total).Error; err != nil {
		return err
	}
	if total == 0 {
		return nil
	}
	if err := tx.Model(&models.Subtask{}).Where("task_id = ? AND status = ?", task.ID, models.SubtaskDone).Count(&done).Error; err != nil {
		return err
	}

	next := models.StatusFromSubtasks(done, total)
	if next == task.Status {
		return nil
	}
	old := task.Status
	if err := tx.Model(task).Update("status", next).Error; err != nil {
		return err
	}
	task.Status = next
	return logStatusChange(tx, actorID, task, old, next)
}

func logStatusChange(tx *gorm.DB, actorID uint, task *models.Task, old, next string) error {
	action := models.ActionStatusUpdate
	details := fmt.Sprintf("Changed %q from %s to %s", task.Title, old, next)
	if next == models.TaskCompleted {
		action = models.ActionTaskCompleted
		details = fmt.Sprintf("Completed task %q", task.Title)
	}
	return appendActivity(tx, actorID, action, details, &task.ID, &old, &next)
}

func appendActivity(tx *gorm.DB, userID uint, action, details string, taskID *uint, old, next *string) error {
	entry := models.ActivityLog{
		UserID:     userID,
		ActionType: action,
		Details:    details,
		TaskID:     taskID,
		OldStatus:  old,
		NewStatus:  next,
	}
	return tx.Create(&entry).Error
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
