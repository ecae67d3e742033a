// Package notify turns registration events into worker jobs.
package notify

import (
	"context"

	"github.com/union-bmm/backend/internal/registration"
	"github.com/union-bmm/backend/pkg/queue"
)

// Enqueuer is the part of the job queue the notifier needs.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, jobType queue.JobType, payload queue.NotificationPayload) error
}

// QueueNotifier hands events to the background worker through the Redis job queue.
type QueueNotifier struct {
	queue Enqueuer
}

var _ registration.Notifier = (*QueueNotifier)(nil)

// NewQueueNotifier creates a queue-backed notifier.
func NewQueueNotifier(q Enqueuer) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

func (n *QueueNotifier) CodeIssued(ctx context.Context, evt registration.CodeIssued) error {
	expires := evt.ExpiresAt
	return n.queue.EnqueueNotification(ctx, queue.JobTypeCodeIssued, queue.NotificationPayload{
		MemberID:         evt.MemberID,
		MembershipNumber: evt.MembershipNumber,
		FullName:         evt.FullName,
		Email:            deref(evt.Email),
		Mobile:           deref(evt.Mobile),
		Code:             evt.Code,
		ExpiresAt:        &expires,
	})
}

func (n *QueueNotifier) TicketReady(ctx context.Context, evt registration.TicketReady) error {
	starts := evt.Session.StartsAt
	return n.queue.EnqueueNotification(ctx, queue.JobTypeTicketReady, queue.NotificationPayload{
		MemberID:         evt.MemberID,
		MembershipNumber: evt.MembershipNumber,
		FullName:         evt.FullName,
		Email:            deref(evt.Email),
		Mobile:           deref(evt.Mobile),
		Credential:       evt.Credential,
		VenueName:        evt.Session.VenueName,
		Address:          evt.Session.Address,
		StartsAt:         &starts,
		Reissued:         evt.Reissued,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
