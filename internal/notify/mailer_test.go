package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/labforge/lims-admin/internal/settings"
	"gopkg.in/gomail.v2"
)

func snapshotWith(values map[string]any) *settings.Snapshot {
	snap := settings.NewSnapshot()
	snap.Replace(values, time.Now())
	return snap
}

func TestSMTPMailer_DisabledWithoutHost(t *testing.T) {
	called := false
	mailer := NewSMTPMailer(snapshotWith(map[string]any{
		settings.EmailNotificationsEnabledKey: true,
		settings.SMTPHostKey:                  "",
	}), func(*gomail.Dialer, *gomail.Message) error {
		called = true
		return nil
	})
	if mailer.Enabled() {
		t.Fatalf("expected mailer to be disabled without host")
	}
	if err := mailer.SendAccountCreated(context.Background(), AccountEmail{To: "a@example.com"}); err != nil {
		t.Fatalf("expected silent skip, got %v", err)
	}
	if called {
		t.Fatalf("expected no delivery")
	}
}

func TestSMTPMailer_SendsAccountCreated(t *testing.T) {
	var (
		gotDialer  *gomail.Dialer
		gotMessage bytes.Buffer
	)
	mailer := NewSMTPMailer(snapshotWith(map[string]any{
		settings.EmailNotificationsEnabledKey: true,
		settings.SMTPHostKey:                  "smtp.example.com",
		settings.SMTPPortKey:                  int64(2525),
		settings.SMTPUsernameKey:              "mailer@example.com",
		settings.SMTPPasswordKey:              "secret",
	}), func(d *gomail.Dialer, m *gomail.Message) error {
		gotDialer = d
		_, err := m.WriteTo(&gotMessage)
		return err
	})

	err := mailer.SendAccountCreated(context.Background(), AccountEmail{
		To:                "new.user@example.com",
		Name:              "Ada Lovelace",
		LabName:           "North Lab",
		TemporaryPassword: "Tmp#Pass1",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotDialer == nil || gotDialer.Host != "smtp.example.com" || gotDialer.Port != 2525 || gotDialer.Username != "mailer@example.com" {
		t.Fatalf("unexpected dialer: %+v", gotDialer)
	}
	raw := gotMessage.String()
	for _, want := range []string{"new.user@example.com", "mailer@example.com", "Ada Lovelace", "North Lab", "Tmp#Pass1"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("expected message to contain %q", want)
		}
	}
}

func TestSMTPMailer_PropagatesSendFailure(t *testing.T) {
	mailer := NewSMTPMailer(snapshotWith(map[string]any{
		settings.EmailNotificationsEnabledKey: true,
		settings.SMTPHostKey:                  "smtp.example.com",
	}), func(*gomail.Dialer, *gomail.Message) error {
		return errors.New("connection refused")
	})
	err := mailer.SendPasswordReset(context.Background(), AccountEmail{To: "x@example.com"})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected send failure, got %v", err)
	}
}
