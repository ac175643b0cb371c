package models

import "time"

// Read statuses
const (
	MessageUnread = "unread"
	MessageRead   = "read"
)

// Message is one directed message. Broadcasts are stored as one row per recipient.
type Message struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SenderID        uint      `gorm:"not null;index" json:"sender_id"`
	RecipientID     uint      `gorm:"not null;index" json:"recipient_id"`
	Subject         string    `gorm:"type:varchar(255);not null" json:"subject"`
	Body            string    `gorm:"column:message;type:text;not null" json:"message"`
	TaskID          *uint     `gorm:"index" json:"task_id,omitempty"`
	ParentMessageID *uint     `gorm:"index" json:"parent_message_id,omitempty"`
	SentAt          time.Time `gorm:"not null;index" json:"sent_at"`
	ReadStatus      string    `gorm:"type:varchar(10);not null;default:'unread'" json:"read_status"` // unread, read

	// Relations
	Sender    *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Recipient *User `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
	Task      *Task `gorm:"foreignKey:TaskID" json:"task,omitempty"`
}
