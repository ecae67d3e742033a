package registration

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/union-bmm/backend/internal/models"
)

// Transactor runs fn inside a single store transaction. Calls made with the context passed
// to fn join that transaction; nested WithTx calls reuse it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MemberStore persists members. Lock* methods hold the row until the surrounding
// transaction ends.
type MemberStore interface {
	GetMember(ctx context.Context, id uuid.UUID) (models.Member, error)
	GetMemberByToken(ctx context.Context, token string) (models.Member, error)
	LockMember(ctx context.Context, id uuid.UUID) (models.Member, error)
	UpdateMember(ctx context.Context, m models.Member) error
}

// SessionStore is the venue/session directory plus the reserved-seat counters.
// IncrementReserved and DecrementReserved are the only writers of Session.Reserved.
type SessionStore interface {
	GetVenue(ctx context.Context, name string) (models.Venue, error)
	GetSession(ctx context.Context, id uuid.UUID) (models.Session, error)
	FindSession(ctx context.Context, venueName string, startsAt time.Time) (models.Session, error)
	ListSessions(ctx context.Context, region models.Region) ([]models.Session, error)
	// IncrementReserved adds one seat only while reserved < capacity, returning
	// ErrCapacityExceeded otherwise.
	IncrementReserved(ctx context.Context, id uuid.UUID) error
	// DecrementReserved removes one seat, never going below zero.
	DecrementReserved(ctx context.Context, id uuid.UUID) error
}

// TicketStore persists check-in credentials.
type TicketStore interface {
	CreateTicket(ctx context.Context, t models.Ticket) error
	GetTicket(ctx context.Context, credential string) (models.Ticket, error)
	LockTicket(ctx context.Context, credential string) (models.Ticket, error)
	UpdateTicket(ctx context.Context, t models.Ticket) error
}

// Store is everything the registration engine needs from the durable store.
type Store interface {
	Transactor
	MemberStore
	SessionStore
	TicketStore
}
