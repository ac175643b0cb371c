package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teamdesk/middleware"
	"teamdesk/models"
	"teamdesk/services"
	"teamdesk/utils"
)

type TeamController struct {
	Teams  *services.TeamRegistry
	Logger *logrus.Entry
}

func NewTeamController(teams *services.TeamRegistry, logger *logrus.Entry) *TeamController {
	return &TeamController{Teams: teams, Logger: logger}
}

type AddMemberRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

func (tc *TeamController) ListTeams(c *fiber.Ctx) error {
	teams, err := tc.Teams.ListTeams(c.UserContext(), middleware.CurrentActor(c))
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(teams))
}

func (tc *TeamController) GetTeam(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	detail, err := tc.Teams.GetTeam(c.UserContext(), middleware.CurrentActor(c), id)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(detail))
}

func (tc *TeamController) CreateTeam(c *fiber.Ctx) error {
	var req services.TeamInput
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	team, err := tc.Teams.CreateTeam(c.UserContext(), middleware.CurrentActor(c), req)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	tc.Logger.WithField("team_id", team.ID).Info("team created")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(team))
}

func (tc *TeamController) UpdateTeam(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	var req services.TeamInput
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	team, err := tc.Teams.UpdateTeam(c.UserContext(), middleware.CurrentActor(c), id, req)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(team))
}

func (tc *TeamController) DeleteTeam(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	if err := tc.Teams.DeleteTeam(c.UserContext(), id); err != nil {
		return utils.ServiceError(c, err)
	}
	tc.Logger.WithField("team_id", id).Info("team deleted")
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}

// Members backs the dashboard's team drill-down
func (tc *TeamController) Members(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	members, err := tc.Teams.TeamMembers(c.UserContext(), middleware.CurrentActor(c), id)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"members": members}))
}

func (tc *TeamController) AddMember(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	var req AddMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	if err := tc.Teams.AddMember(c.UserContext(), middleware.CurrentActor(c), id, req.UserID); err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"team_id": id, "user_id": req.UserID}))
}

func (tc *TeamController) RemoveMember(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	userID, err := utils.ParseID(c, "userId")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	if err := tc.Teams.RemoveMember(c.UserContext(), middleware.CurrentActor(c), id, userID); err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"team_id": id, "user_id": userID}))
}

func (tc *TeamController) GetPermissions(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	userID, err := utils.ParseID(c, "userId")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	perm, ok, err := tc.Teams.Permissions(c.UserContext(), userID, id)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "No permission record for this team admin and team", nil)
	}
	return c.JSON(utils.SuccessResponse(perm))
}

func (tc *TeamController) SetPermissions(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	userID, err := utils.ParseID(c, "userId")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	var flags models.PermissionSet
	if err := c.BodyParser(&flags); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}

	perm, err := tc.Teams.SetPermissions(c.UserContext(), userID, id, flags)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	tc.Logger.WithFields(logrus.Fields{"team_id": id, "user_id": userID}).Info("permissions updated")
	return c.JSON(utils.SuccessResponse(perm))
}
