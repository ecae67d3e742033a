package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/registration"
	"github.com/union-bmm/backend/pkg/queue"
)

type enqueued struct {
	jobType queue.JobType
	payload queue.NotificationPayload
}

type fakeQueue struct {
	jobs []enqueued
}

func (f *fakeQueue) EnqueueNotification(_ context.Context, jobType queue.JobType, payload queue.NotificationPayload) error {
	f.jobs = append(f.jobs, enqueued{jobType: jobType, payload: payload})
	return nil
}

func TestQueueNotifier(t *testing.T) {
	q := &fakeQueue{}
	n := NewQueueNotifier(q)
	ctx := context.Background()
	email := "kiri@example.org"
	id := uuid.New()
	expires := time.Date(2026, 8, 1, 9, 15, 0, 0, time.UTC)

	require.NoError(t, n.CodeIssued(ctx, registration.CodeIssued{MemberID: id, MembershipNumber: "M1", Email: &email, Code: "004211", ExpiresAt: expires}))
	require.NoError(t, n.TicketReady(ctx, registration.TicketReady{
		MemberID:   id,
		Credential: "cred",
		Session:    models.Session{VenueName: "Hall", Address: "1 Main St", StartsAt: expires.Add(24 * time.Hour)},
		Reissued:   true,
	}))

	require.Len(t, q.jobs, 2)
	assert.Equal(t, queue.JobTypeCodeIssued, q.jobs[0].jobType)
	assert.Equal(t, "004211", q.jobs[0].payload.Code)
	assert.Equal(t, email, q.jobs[0].payload.Email)
	assert.Empty(t, q.jobs[0].payload.Mobile)
	assert.Equal(t, expires, *q.jobs[0].payload.ExpiresAt)

	assert.Equal(t, queue.JobTypeTicketReady, q.jobs[1].jobType)
	assert.Equal(t, "cred", q.jobs[1].payload.Credential)
	assert.Equal(t, "Hall", q.jobs[1].payload.VenueName)
	assert.True(t, q.jobs[1].payload.Reissued)
}
