package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/union-bmm/backend/pkg/queue"
)

// LogSender writes messages to the log instead of a gateway. It is the default until an
// email or SMS provider is configured, and it is what staging runs with.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendCode(_ context.Context, p queue.NotificationPayload) error {
	s.logger.Info("verification code",
		zap.String("member_id", p.MemberID.String()),
		zap.String("email", p.Email),
		zap.String("mobile", p.Mobile),
		zap.Timep("expires_at", p.ExpiresAt),
	)
	return nil
}

func (s *LogSender) SendTicket(_ context.Context, p queue.NotificationPayload) error {
	s.logger.Info("ticket ready",
		zap.String("member_id", p.MemberID.String()),
		zap.String("email", p.Email),
		zap.String("venue", p.VenueName),
		zap.Timep("starts_at", p.StartsAt),
		zap.Bool("reissued", p.Reissued),
	)
	return nil
}
