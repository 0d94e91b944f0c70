// Package email provides an SMTP-based escalation notifier.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/ledgerline/ledgerline/internal/port/notifier"
)

const providerName = "email"

// SMTPConfig holds the configuration for SMTP connections.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	To       string
	Password string
}

// Notifier sends escalation notifications via SMTP.
type Notifier struct {
	cfg SMTPConfig
}

// NewNotifier creates a new email notifier.
func NewNotifier(cfg SMTPConfig) *Notifier {
	return &Notifier{cfg: cfg}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{}
}

func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.cfg.Host == "" || n.cfg.From == "" || n.cfg.To == "" {
		return notifier.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var body strings.Builder
	body.WriteString(notification.Message + "\r\n")
	if len(notification.Reasons) > 0 {
		body.WriteString("\r\nReasons:\r\n")
		for _, reason := range notification.Reasons {
			body.WriteString("  - " + reason + "\r\n")
		}
	}
	if notification.CommandID != "" {
		fmt.Fprintf(&body, "\r\nCommand: %s\r\nSession: %s\r\n", notification.CommandID, notification.SessionID)
	}
	if notification.Fingerprint != "" {
		fmt.Fprintf(&body, "Payload fingerprint: %s\r\n", notification.Fingerprint)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.cfg.From, n.cfg.To, notification.Title, body.String())

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Password != "" {
		auth = smtp.PlainAuth("", n.cfg.From, n.cfg.Password, n.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{n.cfg.To}, []byte(msg)); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

func init() {
	notifier.Register(providerName, func(config map[string]string) (notifier.Notifier, error) {
		port, _ := strconv.Atoi(config["smtp_port"])
		if port == 0 {
			port = 587
		}
		return NewNotifier(SMTPConfig{
			Host:     config["smtp_host"],
			Port:     port,
			From:     config["smtp_from"],
			To:       config["smtp_to"],
			Password: config["smtp_password"],
		}), nil
	})
}
