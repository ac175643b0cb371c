package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teamdesk/middleware"
	"teamdesk/services"
	"teamdesk/utils"
)

type MessageController struct {
	Messages *services.MessageStore
	Logger   *logrus.Entry
}

func NewMessageController(messages *services.MessageStore, logger *logrus.Entry) *MessageController {
	return &MessageController{Messages: messages, Logger: logger}
}

func (mc *MessageController) SendMessage(c *fiber.Ctx) error {
	var req services.SendMessageInput
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	actor := middleware.CurrentActor(c)
	msgs, err := mc.Messages.SendMessage(c.UserContext(), actor, req)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	mc.Logger.WithFields(logrus.Fields{
		"sender_id":  actor.UserID,
		"recipients": len(msgs),
		"broadcast":  req.Broadcast,
	}).Info("message sent")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"sent":     len(msgs),
		"messages": msgs,
	}))
}

func (mc *MessageController) Inbox(c *fiber.Ctx) error {
	page, limit := utils.PageParams(c)
	msgs, total, err := mc.Messages.Inbox(c.UserContext(), middleware.CurrentActor(c).UserID, c.QueryBool("unread", false), page, limit)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{Data: msgs, Total: total, Page: page, Limit: limit}))
}

func (mc *MessageController) Sent(c *fiber.Ctx) error {
	page, limit := utils.PageParams(c)
	msgs, total, err := mc.Messages.Sent(c.UserContext(), middleware.CurrentActor(c).UserID, page, limit)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{Data: msgs, Total: total, Page: page, Limit: limit}))
}

func (mc *MessageController) Thread(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	msgs, err := mc.Messages.Thread(c.UserContext(), middleware.CurrentActor(c).UserID, id)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(msgs))
}

func (mc *MessageController) MarkRead(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	if err := mc.Messages.MarkRead(c.UserContext(), id, middleware.CurrentActor(c).UserID); err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id, "read_status": "read"}))
}

func (mc *MessageController) DeleteMessage(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return utils.ServiceError(c, err)
	}
	if err := mc.Messages.DeleteMessage(c.UserContext(), id, middleware.CurrentActor(c).UserID); err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}

func (mc *MessageController) UnreadCount(c *fiber.Ctx) error {
	n, err := mc.Messages.UnreadCount(c.UserContext(), middleware.CurrentActor(c).UserID)
	if err != nil {
		return utils.ServiceError(c, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"unread": n}))
}
