package utils

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"teamdesk/config"
)

func TestRender_MessageTemplate(t *testing.T) {
	body, err := Render(EmailData{
		Template: "message",
		Subject:  "Status",
		Year:     2026,
		Data: MessageNotice{
			RecipientName: "Eve Worker",
			SenderName:    "Tom Lead",
			Subject:       "Status",
			Preview:       "Please send <b>numbers</b>",
			TaskTitle:     "Quarterly report",
		},
	})
	require.NoError(t, err)
	assert.Contains(t, body, "New message from Tom Lead")
	assert.Contains(t, body, "Hi Eve Worker")
	assert.Contains(t, body, "(task: Quarterly report)")
	assert.Contains(t, body, "&lt;b&gt;numbers&lt;/b&gt;")
	assert.Contains(t, body, "&copy; 2026 TeamDesk")
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, err := Render(EmailData{Template: "invoice"})
	assert.Error(t, err)
}

func TestMailer_Send(t *testing.T) {
	cfg := config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}
	var sent []*gomail.Message
	m := &Mailer{cfg: cfg, send: func(msg *gomail.Message) error {
		sent = append(sent, msg)
		return nil
	}}

	err := m.Send(EmailData{
		Subject:  "Hello",
		To:       []string{"eve@example.com"},
		Template: "message",
		Data:     MessageNotice{RecipientName: "Eve", SenderName: "Tom", Subject: "Hello"},
	})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"eve@example.com"}, sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Hello"}, sent[0].GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "TeamDesk")

	m.send = func(*gomail.Message) error { return errors.New("connection refused") }
	err = m.Send(EmailData{Template: "message", To: []string{"eve@example.com"}, Data: MessageNotice{}})
	assert.ErrorContains(t, err, "connection refused")
}

func TestMailer_Enabled(t *testing.T) {
	var nilMailer *Mailer
	assert.False(t, nilMailer.Enabled())
	assert.False(t, NewMailer(config.SMTPConfig{}).Enabled())
	assert.True(t, NewMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 25, From: "a@example.com"}).Enabled())
}
