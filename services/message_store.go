package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"teamdesk/models"
)

// Broadcast scopes accepted by SendMessage
const (
	BroadcastAll  = "all"
	BroadcastTeam = "team"
)

// Notifier is told about messages once they are committed
type Notifier interface {
	MessagesSent(ctx context.Context, msgs []models.Message)
}

// MessageStore delivers direct and broadcast messages
type MessageStore struct {
	db       *gorm.DB
	notifier Notifier
	now      func() time.Time
}

// NewMessageStore builds a store; notifier may be nil
func NewMessageStore(db *gorm.DB, notifier Notifier) *MessageStore {
	return &MessageStore{db: db, notifier: notifier, now: time.Now}
}

type SendMessageInput struct {
	RecipientID     *uint  `json:"recipient_id"`
	Broadcast       string `json:"broadcast" validate:"omitempty,oneof=all team"`
	TeamID          *uint  `json:"team_id"`
	Subject         string `json:"subject" validate:"required,max=255"`
	Body            string `json:"message" validate:"required"`
	TaskID          *uint  `json:"task_id"`
	ParentMessageID *uint  `json:"parent_message_id"`
}

// SendMessage stores one row per recipient inside a single transaction. A failure
// on any row rolls back the whole fan-out.
func (s *MessageStore) SendMessage(ctx context.Context, sender Actor, in SendMessageInput) ([]models.Message, error) {
	subject := strings.TrimSpace(in.Subject)
	body := strings.TrimSpace(in.Body)
	if subject == "" || body == "" {
		return nil, Validation("Subject and message are required")
	}
	if in.RecipientID == nil && in.Broadcast == "" {
		return nil, Validation("Choose a recipient or a broadcast")
	}

	recipients, err := s.resolveRecipients(ctx, sender, in)
	if err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, in); err != nil {
		return nil, err
	}

	now := s.now()
	msgs := make([]models.Message, 0, len(recipients))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rid := range recipients {
			msg := models.Message{
				SenderID:        sender.UserID,
				RecipientID:     rid,
				Subject:         subject,
				Body:            body,
				TaskID:          in.TaskID,
				ParentMessageID: in.ParentMessageID,
				SentAt:          now,
				ReadStatus:      models.MessageUnread,
			}
			if err := tx.Create(&msg).Error; err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	if err != nil {
		return nil, Persistence("sending message", err)
	}

	if s.notifier != nil {
		s.notifier.MessagesSent(ctx, msgs)
	}
	return msgs, nil
}

// MarkRead flags a message read. Only the recipient's own rows match.
func (s *MessageStore) MarkRead(ctx context.Context, messageID, readerID uint) error {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND recipient_id = ?", messageID, readerID).
		Update("read_status", models.MessageRead)
	if res.Error != nil {
		return Persistence("marking message read", res.Error)
	}
	if res.RowsAffected == 0 {
		return Noop("Message not found")
	}
	return nil
}

// DeleteMessage removes a message when the actor sent or received it
func (s *MessageStore) DeleteMessage(ctx context.Context, messageID, actorID uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND (sender_id = ? OR recipient_id = ?)", messageID, actorID, actorID).
		Delete(&models.Message{})
	if res.Error != nil {
		return Persistence("deleting message", res.Error)
	}
	if res.RowsAffected == 0 {
		return Noop("Message not found")
	}
	return nil
}

// Inbox pages through messages received by userID, newest first
func (s *MessageStore) Inbox(ctx context.Context, userID uint, unreadOnly bool, page, limit int) ([]models.Message, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Message{}).Where("recipient_id = ?", userID)
	if unreadOnly {
		query = query.Where("read_status = ?", models.MessageUnread)
	}
	return s.page(query, "Sender", page, limit)
}

// Sent pages through messages sent by userID, newest first
func (s *MessageStore) Sent(ctx context.Context, userID uint, page, limit int) ([]models.Message, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Message{}).Where("sender_id = ?", userID)
	return s.page(query, "Recipient", page, limit)
}

// Thread returns a root message and the replies to it that userID took part in
func (s *MessageStore) Thread(ctx context.Context, userID, rootID uint) ([]models.Message, error) {
	db := s.db.WithContext(ctx)
	var root models.Message
	err := db.Preload("Sender").Preload("Recipient").Preload("Task").
		Where("id = ? AND (sender_id = ? OR recipient_id = ?)", rootID, userID, userID).
		First(&root).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("Message not found")
	}
	if err != nil {
		return nil, Persistence("loading message", err)
	}

	var replies []models.Message
	if err := db.Preload("Sender").Preload("Recipient").
		Where("parent_message_id = ? AND (sender_id = ? OR recipient_id = ?)", rootID, userID, userID).
		Order("sent_at, id").
		Find(&replies).Error; err != nil {
		return nil, Persistence("loading replies", err)
	}
	return append([]models.Message{root}, replies...), nil
}

// UnreadCount counts unread messages addressed to userID
func (s *MessageStore) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("recipient_id = ? AND read_status = ?", userID, models.MessageUnread).
		Count(&n).Error
	if err != nil {
		return 0, Persistence("counting unread messages", err)
	}
	return n, nil
}

func (s *MessageStore) page(query *gorm.DB, party string, page, limit int) ([]models.Message, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, Persistence("counting messages", err)
	}
	page, limit = normalizePage(page, limit)
	var msgs []models.Message
	err := query.Preload(party).Preload("Task").
		Order("sent_at desc, id desc").
		Offset((page - 1) * limit).Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, Persistence("loading messages", err)
	}
	return msgs, total, nil
}

// resolveRecipients turns a direct recipient or a broadcast scope into user ids.
// Inactive users never receive broadcasts.
func (s *MessageStore) resolveRecipients(ctx context.Context, sender Actor, in SendMessageInput) ([]uint, error) {
	db := s.db.WithContext(ctx)

	if in.Broadcast == "" {
		if *in.RecipientID == sender.UserID {
			return nil, Validation("You cannot send a message to yourself")
		}
		var recipient models.User
		err := db.First(&recipient, *in.RecipientID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Reference("Recipient does not exist")
		}
		if err != nil {
			return nil, Persistence("loading recipient", err)
		}
		if !recipient.IsActive() {
			return nil, Reference("Recipient account is inactive")
		}
		return []uint{recipient.ID}, nil
	}

	query := db.Model(&models.User{}).Where("id <> ? AND status = ?", sender.UserID, models.StatusActive)
	switch in.Broadcast {
	case BroadcastAll:
		if !sender.IsAdmin() {
			return nil, Noop("Only admins can broadcast to everyone")
		}
	case BroadcastTeam:
		teamIDs, err := s.broadcastTeams(ctx, sender, in.TeamID)
		if err != nil {
			return nil, err
		}
		query = query.Where("role = ? AND team_id IN ?", models.RoleEmployee, teamIDs)
	default:
		return nil, Validation("Unknown broadcast scope %q", in.Broadcast)
	}

	var ids []uint
	if err := query.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, Persistence("resolving recipients", err)
	}
	if len(ids) == 0 {
		return nil, Validation("No recipients match this broadcast")
	}
	return ids, nil
}

func (s *MessageStore) broadcastTeams(ctx context.Context, sender Actor, teamID *uint) ([]uint, error) {
	switch {
	case sender.IsAdmin():
		if teamID == nil {
			return nil, Validation("Select the team to broadcast to")
		}
		if err := requireTeam(s.db.WithContext(ctx), *teamID); err != nil {
			return nil, err
		}
		return []uint{*teamID}, nil
	case sender.IsTeamAdmin():
		ids, err := teamsWithCapability(ctx, s.db, sender.UserID, models.CanSendMessages)
		if err != nil {
			return nil, Persistence("checking permissions", err)
		}
		if teamID != nil {
			if !containsID(ids, *teamID) {
				return nil, Noop("Unable to message this team")
			}
			ids = []uint{*teamID}
		}
		if len(ids) == 0 {
			return nil, Noop("Unable to message this team")
		}
		return ids, nil
	}
	return nil, Noop("Only admins and team admins can broadcast")
}

func (s *MessageStore) checkReferences(ctx context.Context, in SendMessageInput) error {
	db := s.db.WithContext(ctx)
	if in.TaskID != nil {
		var n int64
		if err := db.Model(&models.Task{}).Where("id = ?", *in.TaskID).Count(&n).Error; err != nil {
			return Persistence("loading task", err)
		}
		if n == 0 {
			return Reference("Linked task does not exist")
		}
	}
	if in.ParentMessageID != nil {
		var n int64
		if err := db.Model(&models.Message{}).Where("id = ?", *in.ParentMessageID).Count(&n).Error; err != nil {
			return Persistence("loading message", err)
		}
		if n == 0 {
			return Reference("Message being replied to does not exist")
		}
	}
	return nil
}
