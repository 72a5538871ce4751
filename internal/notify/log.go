package notify

import (
	"context"

	"concierge-automation/internal/common/logging"
)

// LogSender writes notifications to the application log. It is the fallback
// when no SMTP or webhook channel is configured, and keeps notify actions
// observable in development.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, notification *Notification) error {
	l.logger.Info("notification",
		logging.String("user_id", notification.UserID),
		logging.String("subject", notification.Subject),
		logging.String("message", notification.Message))
	return nil
}
