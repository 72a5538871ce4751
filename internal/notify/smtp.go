package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/logging"
)

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPSender delivers notifications as plain-text email over SMTP with
// STARTTLS.
type SMTPSender struct {
	config SMTPConfig
	logger logging.Logger
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(config SMTPConfig, logger logging.Logger) *SMTPSender {
	return &SMTPSender{
		config: config,
		logger: logger,
		send:   smtp.SendMail,
	}
}

func (s *SMTPSender) Send(ctx context.Context, notification *Notification) error {
	if s.config.Host == "" {
		return errors.ConfigError("smtp host is not configured")
	}
	if notification.Recipient == "" {
		return errors.ValidationError("notification recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	message := buildMessage(s.config.From, notification)
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	if err := s.send(addr, auth, s.config.From, []string{notification.Recipient}, message); err != nil {
		return errors.ConnectionError("failed to send notification email", err)
	}

	s.logger.Info("notification email sent",
		logging.String("user_id", notification.UserID),
		logging.String("recipient", notification.Recipient))
	return nil
}

func buildMessage(from string, notification *Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", notification.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", notification.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(notification.Message)
	b.WriteString("\r\n")
	return []byte(b.String())
}
