package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teamdesk/middleware"
	"teamdesk/services"
	"teamdesk/utils"
)

type DashboardController struct {
	Activity   *services.ActivityAggregator
	Tasks      *services.TaskStore
	Messages   *services.MessageStore
	DisplayCap int
	Logger     *logrus.Entry
}

func NewDashboardController(activity *services.ActivityAggregator, tasks *services.TaskStore, messages *services.MessageStore, displayCap int, logger *logrus.Entry) *DashboardController {
	return &DashboardController{
		Activity:   activity,
		Tasks:      tasks,
		Messages:   messages,
		DisplayCap: displayCap,
		Logger:     logger,
	}
}

// GetActivityFeed returns today's merged activity for the selected scope.
// ?team= takes "global", "mine" or a team id; ?limit= overrides the display cap.
func (dc *DashboardController) GetActivityFeed(c *fiber.Ctx) error {
	actor := middleware.CurrentActor(c)
	scope, err := dc.Activity.ResolveScope(c.UserContext(), actor, c.Query("team"))
	if err != nil {
		return utils.ServiceError(c, err)
	}

	displayCap := c.QueryInt("limit", dc.DisplayCap)
	if displayCap <= 0 || displayCap > 100 {
		displayCap = dc.DisplayCap
	}
	feed := dc.Activity.Feed(c.UserContext(), scope, displayCap)
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"scope": scope,
		"feed":  feed,
	}))
}

// GetDashboardStats returns the summary cards for the dashboard
func (dc *DashboardController) GetDashboardStats(c *fiber.Ctx) error {
	actor := middleware.CurrentActor(c)
	stats, err := dc.Tasks.Stats(c.UserContext(), actor)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	unread, err := dc.Messages.UnreadCount(c.UserContext(), actor.UserID)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	stats.UnreadMessages = unread
	return c.JSON(utils.SuccessResponse(stats))
}
