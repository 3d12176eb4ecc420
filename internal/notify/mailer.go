package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/labforge/lims-admin/internal/settings"
	log "github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// AccountEmail carries the values rendered into account notifications.
type AccountEmail struct {
	To                string
	Name              string
	LabName           string
	TemporaryPassword string
}

// Mailer delivers account notifications.
type Mailer interface {
	Enabled() bool
	SendAccountCreated(ctx context.Context, msg AccountEmail) error
	SendPasswordReset(ctx context.Context, msg AccountEmail) error
}

// SendFunc delivers a built message through a dialer.
type SendFunc func(d *gomail.Dialer, m *gomail.Message) error

// SMTPMailer sends mail through the SMTP server configured in settings.
type SMTPMailer struct {
	snapshot *settings.Snapshot
	send     SendFunc
}

// NewSMTPMailer constructs a mailer reading SMTP settings at send time.
func NewSMTPMailer(snapshot *settings.Snapshot, send SendFunc) *SMTPMailer {
	if send == nil {
		send = func(d *gomail.Dialer, m *gomail.Message) error {
			return d.DialAndSend(m)
		}
	}
	return &SMTPMailer{snapshot: snapshot, send: send}
}

// Enabled reports whether notifications are switched on and an SMTP host is set.
func (m *SMTPMailer) Enabled() bool {
	if m == nil || m.snapshot == nil {
		return false
	}
	if !m.snapshot.Bool(settings.EmailNotificationsEnabledKey, false) {
		return false
	}
	return strings.TrimSpace(m.snapshot.String(settings.SMTPHostKey, "")) != ""
}

// SendAccountCreated mails the onboarding message with the temporary password.
func (m *SMTPMailer) SendAccountCreated(ctx context.Context, msg AccountEmail) error {
	return m.deliver(ctx, msg, "Your laboratory account", accountCreatedTemplate)
}

// SendPasswordReset mails a new temporary password.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, msg AccountEmail) error {
	return m.deliver(ctx, msg, "Your password has been reset", passwordResetTemplate)
}

func (m *SMTPMailer) deliver(ctx context.Context, msg AccountEmail, subject string, tmpl *template.Template) error {
	if !m.Enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return fmt.Errorf("notify: missing recipient")
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, msg); err != nil {
		return fmt.Errorf("notify: render %s: %w", tmpl.Name(), err)
	}

	host := strings.TrimSpace(m.snapshot.String(settings.SMTPHostKey, ""))
	port := int(m.snapshot.Int(settings.SMTPPortKey, 587))
	username := m.snapshot.String(settings.SMTPUsernameKey, "")
	password := m.snapshot.String(settings.SMTPPasswordKey, "")
	from := strings.TrimSpace(m.snapshot.String(settings.SMTPFromKey, ""))
	if from == "" {
		from = username
	}
	if from == "" {
		from = m.snapshot.String(settings.LabEmailKey, "")
	}

	message := gomail.NewMessage()
	message.SetHeader("From", from)
	message.SetHeader("To", to)
	message.SetHeader("Subject", subject)
	message.SetBody("text/html", body.String())

	dialer := gomail.NewDialer(host, port, username, password)
	if err := m.send(dialer, message); err != nil {
		return fmt.Errorf("notify: send to %s: %w", to, err)
	}
	log.WithFields(log.Fields{"to": to, "subject": subject}).Info("notify: email sent")
	return nil
}

var accountCreatedTemplate = template.Must(template.New("account_created").Parse(`<p>Hello {{.Name}},</p>
<p>An account has been created for you at {{.LabName}}.</p>
<p>Temporary password: <strong>{{.TemporaryPassword}}</strong></p>
<p>You will be asked to choose a new password when you first sign in.</p>`))

var passwordResetTemplate = template.Must(template.New("password_reset").Parse(`<p>Hello {{.Name}},</p>
<p>An administrator at {{.LabName}} reset your password.</p>
<p>Temporary password: <strong>{{.TemporaryPassword}}</strong></p>
<p>You will be asked to choose a new password when you next sign in.</p>`))
