package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"teamdesk/middleware"
	"teamdesk/realtime"
	"teamdesk/services"
)

type NotificationController struct {
	Hub    *realtime.Hub
	Logger *logrus.Entry
}

func NewNotificationController(hub *realtime.Hub, logger *logrus.Entry) *NotificationController {
	return &NotificationController{Hub: hub, Logger: logger}
}

// Upgrade rejects plain HTTP requests to the websocket endpoint
func (nc *NotificationController) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Stream pushes hub events for the authenticated user until the client disconnects
func (nc *NotificationController) Stream(c *websocket.Conn) {
	defer c.Close()

	actor, ok := c.Locals(middleware.LocalActor).(services.Actor)
	if !ok || actor.UserID == 0 {
		return
	}
	log := nc.Logger.WithField("user_id", actor.UserID)

	events, unsubscribe := nc.Hub.Subscribe(actor.UserID)
	defer unsubscribe()
	log.Debug("notification stream opened")

	// Reads only detect the close; clients send nothing meaningful.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("notification write failed")
				return
			}
		case <-ping.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			log.Debug("notification stream closed")
			return
		}
	}
}
