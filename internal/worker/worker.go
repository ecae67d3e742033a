package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/flowchartsman/retry"
	"go.uber.org/zap"

	"github.com/union-bmm/backend/pkg/queue"
)

// Sender delivers member messages over email or SMS.
type Sender interface {
	SendCode(ctx context.Context, p queue.NotificationPayload) error
	SendTicket(ctx context.Context, p queue.NotificationPayload) error
}

// JobSource is the part of the job queue the worker loop needs.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// NotificationProcessor sends verification codes and tickets queued by the API.
type NotificationProcessor struct {
	sender   Sender
	queue    JobSource
	logger   *zap.Logger
	attempts int
	backoff  time.Duration
}

// NewNotificationProcessor creates a notification processor. attempts bounds in-process
// send retries before the job goes back on the queue.
func NewNotificationProcessor(sender Sender, q JobSource, logger *zap.Logger, attempts int) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &NotificationProcessor{sender: sender, queue: q, logger: logger, attempts: attempts, backoff: queue.RetryBackoff}
}

// Process executes one notification job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeNotification(job)
	if err != nil {
		return err
	}
	if payload.Email == "" && payload.Mobile == "" {
		p.logger.Warn("member has no contact channel, dropping job", zap.String("job_id", job.ID), zap.String("member_id", payload.MemberID.String()))
		return nil
	}

	var send func(context.Context, queue.NotificationPayload) error
	switch job.Type {
	case queue.JobTypeCodeIssued:
		if payload.ExpiresAt != nil && time.Now().After(*payload.ExpiresAt) {
			p.logger.Info("verification code expired before delivery", zap.String("job_id", job.ID), zap.String("member_id", payload.MemberID.String()))
			return nil
		}
		send = p.sender.SendCode
	case queue.JobTypeTicketReady:
		send = p.sender.SendTicket
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	retrier := retry.NewRetrier(p.attempts, 100*time.Millisecond, time.Second)
	if err := retrier.Run(func() error {
		return send(ctx, payload)
	}); err != nil {
		return fmt.Errorf("send %s: %w", job.Type, err)
	}
	p.logger.Info("notification sent", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.String("member_id", payload.MemberID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *NotificationProcessor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}
