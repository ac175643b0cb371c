package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teamdesk/middleware"
	"teamdesk/services"
	"teamdesk/utils"
)

type UserController struct {
	Users  *services.UserDirectory
	Tasks  *services.TaskStore
	Logger *logrus.Entry
}

func NewUserController(users *services.UserDirectory, tasks *services.TaskStore, logger *logrus.Entry) *UserController {
	return &UserController{Users: users, Tasks: tasks, Logger: logger}
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

func (uc *UserController) CreateUser(c *fiber.Ctx) error {
	var req services.CreateUserInput
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	user, err := uc.Users.CreateUser(c.UserContext(), middleware.CurrentActor(c), req)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	uc.Logger.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user created")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(user))
}

func (uc *UserController) ListUsers(c *fiber.Ctx) error {
	teamID, err := utils.OptionalID(c, "team_id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	users, err := uc.Users.ListUsers(c.UserContext(), middleware.CurrentActor(c), services.UserFilter{
		Role:   c.Query("role"),
		Status: c.Query("status"),
		TeamID: teamID,
	})
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(users))
}

func (uc *UserController) UpdateStatus(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	if err := uc.Users.SetStatus(c.UserContext(), middleware.CurrentActor(c), id, req.Status); err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id, "status": req.Status}))
}

// UserTasks is the dashboard drill-down into one user's tasks and recent activity
func (uc *UserController) UserTasks(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	out, err := uc.Tasks.UserTasks(c.UserContext(), middleware.CurrentActor(c), id)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(out))
}
