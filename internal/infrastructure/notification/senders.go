// Package notification provides the delivery side of the notification
// dispatcher. The senders here log outbound messages instead of calling a
// provider; swapping in a real email or SMS provider only means replacing
// the Send implementations.
package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/jdfresh/backend/internal/application/notification"
	"github.com/jdfresh/backend/internal/infrastructure/config"
)

// LogEmailSender writes email notifications to the application log
type LogEmailSender struct {
	from   string
	logger *zap.Logger
}

// NewLogEmailSender creates a log-backed email sender
func NewLogEmailSender(cfg *config.NotificationConfig, logger *zap.Logger) *LogEmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmailSender{from: cfg.EmailFrom, logger: logger}
}

// Channel returns the channel this sender serves
func (s *LogEmailSender) Channel() notification.Channel {
	return notification.ChannelEmail
}

// Send delivers the notification
func (s *LogEmailSender) Send(ctx context.Context, n *notification.Notification) error {
	s.logger.Info("email notification",
		zap.String("from", s.from),
		zap.String("to", n.Recipient),
		zap.String("subject", n.Subject),
		zap.String("body", n.Body))
	return nil
}

// LogSMSSender writes SMS notifications to the application log
type LogSMSSender struct {
	sender string
	logger *zap.Logger
}

// NewLogSMSSender creates a log-backed SMS sender
func NewLogSMSSender(cfg *config.NotificationConfig, logger *zap.Logger) *LogSMSSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSMSSender{sender: cfg.SMSSender, logger: logger}
}

// Channel returns the channel this sender serves
func (s *LogSMSSender) Channel() notification.Channel {
	return notification.ChannelSMS
}

// Send delivers the notification
func (s *LogSMSSender) Send(ctx context.Context, n *notification.Notification) error {
	s.logger.Info("sms notification",
		zap.String("sender", s.sender),
		zap.String("to", n.Recipient),
		zap.String("body", n.Body))
	return nil
}

var (
	_ notification.Sender = (*LogEmailSender)(nil)
	_ notification.Sender = (*LogSMSSender)(nil)
)
