// Package notification delivers alert emails for high-severity findings.
package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"netwatch/internal/config"
)

// EmailNotifier sends HTML mail over SMTP. The recipient list and server
// address are resolved once at construction.
type EmailNotifier struct {
	addr       string
	from       string
	recipients []string
	auth       smtp.Auth
}

// NewEmailNotifier validates the SMTP settings and prepares the notifier.
// Recipients come from a comma-separated list; surrounding whitespace and
// empty entries are discarded.
func NewEmailNotifier(cfg config.SMTPConfig) (*EmailNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}

	recipients := splitRecipients(cfg.To)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("smtp recipient list is empty")
	}

	// PlainAuth will not send credentials until the server identifies
	// itself as a trusted one.
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &EmailNotifier{
		addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:       cfg.From,
		recipients: recipients,
		auth:       auth,
	}, nil
}

// Send mails one HTML message to every configured recipient.
func (n *EmailNotifier) Send(subject, body string) error {
	msg := n.buildMessage(subject, body)
	if err := smtp.SendMail(n.addr, n.auth, n.from, n.recipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (n *EmailNotifier) buildMessage(subject, body string) []byte {
	var b strings.Builder
	b.WriteString("To: " + strings.Join(n.recipients, ", ") + "\r\n")
	b.WriteString("From: " + n.from + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func splitRecipients(raw string) []string {
	var out []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
