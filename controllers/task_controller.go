package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teamdesk/middleware"
	"teamdesk/services"
	"teamdesk/utils"
)

type TaskController struct {
	Tasks  *services.TaskStore
	Logger *logrus.Entry
}

func NewTaskController(tasks *services.TaskStore, logger *logrus.Entry) *TaskController {
	return &TaskController{Tasks: tasks, Logger: logger}
}

type UpdateTaskStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=to_do in_progress needs_approval completed"`
}

type AddSubtaskRequest struct {
	Title string `json:"title" validate:"required,max=255"`
}

type ToggleSubtaskRequest struct {
	Done bool `json:"done"`
}

func (tc *TaskController) CreateTask(c *fiber.Ctx) error {
	var req services.CreateTaskInput
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	task, err := tc.Tasks.CreateTask(c.UserContext(), middleware.CurrentActor(c), req)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	tc.Logger.WithFields(logrus.Fields{"task_id": task.ID, "assigned_to": task.AssignedTo}).Info("task created")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) ListTasks(c *fiber.Ctx) error {
	assignedTo, err := utils.OptionalID(c, "assigned_to")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	teamID, err := utils.OptionalID(c, "team_id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	page, limit := utils.PageParams(c)

	tasks, total, err := tc.Tasks.ListTasks(c.UserContext(), middleware.CurrentActor(c), services.TaskFilter{
		Status:          c.Query("status"),
		AssignedTo:      assignedTo,
		TeamID:          teamID,
		IncludeArchived: c.QueryBool("include_archived", false),
		Page:            page,
		Limit:           limit,
	})
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{
		Data:  tasks,
		Total: total,
		Page:  page,
		Limit: limit,
	}))
}

func (tc *TaskController) GetTask(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	task, err := tc.Tasks.GetTask(c.UserContext(), middleware.CurrentActor(c), id)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) UpdateStatus(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	var req UpdateTaskStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	task, err := tc.Tasks.UpdateTaskStatus(c.UserContext(), middleware.CurrentActor(c), id, req.Status)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) AddSubtask(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	var req AddSubtaskRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	subtask, err := tc.Tasks.AddSubtask(c.UserContext(), middleware.CurrentActor(c), id, req.Title)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(subtask))
}

// ToggleSubtask marks a subtask done or not done and returns the parent task
// with its re-derived status
func (tc *TaskController) ToggleSubtask(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	var req ToggleSubtaskRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}

	task, err := tc.Tasks.ToggleSubtask(c.UserContext(), middleware.CurrentActor(c), id, req.Done)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) ApproveTask(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	task, err := tc.Tasks.ApproveTask(c.UserContext(), middleware.CurrentActor(c), id)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) ArchiveTask(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	if err := tc.Tasks.ArchiveTask(c.UserContext(), middleware.CurrentActor(c), id); err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id, "archived": true}))
}
