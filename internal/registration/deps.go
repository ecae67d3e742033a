package registration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/union-bmm/backend/internal/clock"
	"github.com/union-bmm/backend/internal/models"
)

// CodeIssued is emitted after a fresh verification code has been stored for a member.
type CodeIssued struct {
	MemberID         uuid.UUID
	MembershipNumber string
	FullName         string
	Email            *string
	Mobile           *string
	Code             string
	ExpiresAt        time.Time
}

// TicketReady is emitted after a check-in credential has been issued or re-issued.
type TicketReady struct {
	MemberID         uuid.UUID
	MembershipNumber string
	FullName         string
	Email            *string
	Mobile           *string
	Credential       string
	Session          models.Session
	Reissued         bool
}

// Notifier hands events to the messaging collaborator. Delivery is fire-and-forget:
// errors are logged by the caller and never undo a committed transaction.
type Notifier interface {
	CodeIssued(ctx context.Context, evt CodeIssued) error
	TicketReady(ctx context.Context, evt TicketReady) error
}

// Limiter counts attempts per key inside a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Deps bundles the collaborators shared by the registration components.
type Deps struct {
	Store    Store
	Clock    clock.Clock
	Notifier Notifier
	Limiter  Limiter
	Logger   *zap.Logger
}

// Policy holds the per-event rules.
type Policy struct {
	SpecialVoteRegion models.Region
	CodeTTL           time.Duration
	CodeRequestLimit  int
	VerifyAttempts    int
	LimitWindow       time.Duration
}

const (
	defaultCodeTTL     = 15 * time.Minute
	defaultLimitWindow = time.Hour
)

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

func (p Policy) withDefaults() Policy {
	if p.CodeTTL <= 0 {
		p.CodeTTL = defaultCodeTTL
	}
	if p.LimitWindow <= 0 {
		p.LimitWindow = defaultLimitWindow
	}
	return p
}

type nopNotifier struct{}

func (nopNotifier) CodeIssued(context.Context, CodeIssued) error   { return nil }
func (nopNotifier) TicketReady(context.Context, TicketReady) error { return nil }
