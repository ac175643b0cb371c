package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"

	"teamdesk/config"
)

type EmailData struct {
	Subject  string
	To       []string
	Template string
	Data     interface{}
	Year     int
	FromName string
}

// MessageNotice is the template data of the "message" email
type MessageNotice struct {
	RecipientName string
	SenderName    string
	Subject       string
	Preview       string
	TaskTitle     string
}

var emailTemplates = map[string]*template.Template{
	"message": template.Must(template.New("message").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .preview { background: #f8f9fa; padding: 12px; border-left: 3px solid #3498db; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; }
    </style>
</head>
<body>
    <div class="header"><h2>New message from {{.Data.SenderName}}</h2></div>
    <p>Hi {{.Data.RecipientName}},</p>
    <p><strong>{{.Data.Subject}}</strong>{{if .Data.TaskTitle}} (task: {{.Data.TaskTitle}}){{end}}</p>
    <div class="preview">{{.Data.Preview}}</div>
    <p>Sign in to reply.</p>
    <div class="footer">&copy; {{.Year}} TeamDesk</div>
</body>
</html>`)),
}

// Mailer sends templated email over SMTP
type Mailer struct {
	cfg  config.SMTPConfig
	send func(m *gomail.Message) error
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Mailer{cfg: cfg, send: func(m *gomail.Message) error { return dialer.DialAndSend(m) }}
}

// Enabled reports whether SMTP is configured
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Enabled()
}

// Render executes a named template
func Render(data EmailData) (string, error) {
	tmpl, ok := emailTemplates[data.Template]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", data.Template)
	}
	if data.Year == 0 {
		data.Year = time.Now().Year()
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("rendering %s email: %w", data.Template, err)
	}
	return body.String(), nil
}

// Send renders and delivers an email
func (m *Mailer) Send(data EmailData) error {
	body, err := Render(data)
	if err != nil {
		return err
	}

	fromName := data.FromName
	if fromName == "" {
		fromName = "TeamDesk"
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(m.cfg.From, fromName))
	msg.SetHeader("To", data.To...)
	msg.SetHeader("Subject", data.Subject)
	msg.SetBody("text/html", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}
