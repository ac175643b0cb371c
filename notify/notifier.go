package notify

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"teamdesk/models"
	"teamdesk/realtime"
	"teamdesk/services"
	"teamdesk/utils"
)

// EventNewMessage is the realtime event type for a delivered message
const EventNewMessage = "message.new"

// Mailer is the subset of utils.Mailer the notifier uses
type Mailer interface {
	Enabled() bool
	Send(data utils.EmailData) error
}

// MessagePayload is what a recipient's browser receives
type MessagePayload struct {
	ID       uint   `json:"id"`
	SenderID uint   `json:"sender_id"`
	Sender   string `json:"sender"`
	Subject  string `json:"subject"`
	Preview  string `json:"preview"`
	TaskID   *uint  `json:"task_id,omitempty"`
}

// Notifier pushes committed messages to live connections and, when SMTP is
// configured, emails recipients in the background
type Notifier struct {
	db     *gorm.DB
	hub    *realtime.Hub
	mailer Mailer
	log    *logrus.Entry
	async  bool
}

var _ services.Notifier = (*Notifier)(nil)

func New(db *gorm.DB, hub *realtime.Hub, mailer Mailer, log *logrus.Entry) *Notifier {
	return &Notifier{db: db, hub: hub, mailer: mailer, log: log, async: true}
}

func (n *Notifier) MessagesSent(ctx context.Context, msgs []models.Message) {
	if len(msgs) == 0 {
		return
	}

	ids := make([]uint, 0, len(msgs)+1)
	ids = append(ids, msgs[0].SenderID)
	for _, m := range msgs {
		ids = append(ids, m.RecipientID)
	}
	var users []models.User
	if err := n.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		n.log.WithError(err).Warn("Could not load message participants")
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	sender := byID[msgs[0].SenderID]

	var taskTitle string
	if msgs[0].TaskID != nil {
		var task models.Task
		if err := n.db.WithContext(ctx).Select("title").First(&task, *msgs[0].TaskID).Error; err == nil {
			taskTitle = task.Title
		}
	}

	var emails []utils.EmailData
	for _, m := range msgs {
		payload := MessagePayload{
			ID:       m.ID,
			SenderID: m.SenderID,
			Sender:   sender.FullName,
			Subject:  m.Subject,
			Preview:  services.MessagePreview(m.Body),
			TaskID:   m.TaskID,
		}
		delivered := n.hub.Publish(m.RecipientID, realtime.Event{Type: EventNewMessage, Data: payload})

		recipient, ok := byID[m.RecipientID]
		if !ok || delivered > 0 || n.mailer == nil || !n.mailer.Enabled() {
			continue
		}
		emails = append(emails, utils.EmailData{
			Subject:  "New message: " + m.Subject,
			To:       []string{recipient.Email},
			Template: "message",
			Data: utils.MessageNotice{
				RecipientName: recipient.FullName,
				SenderName:    sender.FullName,
				Subject:       m.Subject,
				Preview:       payload.Preview,
				TaskTitle:     taskTitle,
			},
		})
	}

	if len(emails) == 0 {
		return
	}
	if n.async {
		go n.sendAll(emails)
		return
	}
	n.sendAll(emails)
}

func (n *Notifier) sendAll(emails []utils.EmailData) {
	for _, e := range emails {
		if err := n.mailer.Send(e); err != nil {
			utils.LogError("message_email_failed", err, map[string]interface{}{"to": e.To})
			continue
		}
		n.log.WithField("to", e.To).Debug("Message notification emailed")
	}
}
