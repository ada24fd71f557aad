// Package mailer sends the token-issuance notification email described
// in spec §6's supplemental features. SMTP is an external collaborator
// (spec §1) and net/smtp is the standard library's own client for it;
// no example repo in the retrieval pack carries a third-party SMTP
// client, so this one concern is built directly on the standard
// library rather than against an ecosystem dependency.
package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/khvorov45/hcwstudyapp/internal/config"
)

// Mailer sends plain-text notification emails.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends mail through a configured SMTP relay.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer constructs a Mailer from the application's SMTP config.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers a single plain-text message.
func (m *SMTPMailer) Send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}
	return nil
}

// NullMailer discards every message; used in tests and in deployments
// that have not configured an SMTP relay.
type NullMailer struct{}

func (NullMailer) Send(string, string, string) error { return nil }

// TokenIssuedBody renders the body of a token-issuance notification.
func TokenIssuedBody(userEmail, kind string) string {
	return fmt.Sprintf("A new %s token was issued for %s. If this wasn't you, contact the study coordinator.", kind, userEmail)
}
