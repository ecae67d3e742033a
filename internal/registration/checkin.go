package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/union-bmm/backend/internal/models"
)

// CheckInResult is what the gate sees after a successful scan.
type CheckInResult struct {
	MemberID         uuid.UUID      `json:"member_id"`
	MembershipNumber string         `json:"membership_number"`
	FullName         string         `json:"full_name"`
	CheckedInAt      time.Time      `json:"checked_in_at"`
	Session          models.Session `json:"session"`
}

// CheckInProcessor consumes ticket credentials at the venue gate.
type CheckInProcessor struct {
	deps Deps
}

// NewCheckInProcessor creates a check-in processor.
func NewCheckInProcessor(deps Deps) *CheckInProcessor {
	return &CheckInProcessor{deps: deps.withDefaults()}
}

// CheckIn consumes the credential and marks the member checked in, atomically. Unknown or
// voided credentials return ErrNotFound; a second scan returns ErrAlreadyUsed and leaves
// the first consumption time alone.
func (p *CheckInProcessor) CheckIn(ctx context.Context, credential string) (CheckInResult, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return CheckInResult{}, ErrNotFound
	}

	var res CheckInResult
	err := p.deps.Store.WithTx(ctx, func(ctx context.Context) error {
		t, err := p.deps.Store.LockTicket(ctx, credential)
		if err != nil {
			return err
		}
		if !t.Live() {
			return ErrNotFound
		}
		if t.ConsumedAt != nil {
			return fmt.Errorf("%w at %s", ErrAlreadyUsed, t.ConsumedAt.Format(time.RFC3339))
		}
		m, err := p.deps.Store.LockMember(ctx, t.MemberID)
		if err != nil {
			return err
		}
		if err := checkIn.check(m); err != nil {
			return err
		}
		session, err := p.deps.Store.GetSession(ctx, t.SessionID)
		if err != nil {
			return err
		}

		now := p.deps.Clock.Now()
		t.ConsumedAt = &now
		if err := p.deps.Store.UpdateTicket(ctx, t); err != nil {
			return err
		}
		m.Stage = models.StageCheckedIn
		m.CheckedInAt = &now
		m.UpdatedAt = now
		if err := p.deps.Store.UpdateMember(ctx, m); err != nil {
			return err
		}
		res = CheckInResult{
			MemberID:         m.ID,
			MembershipNumber: m.MembershipNumber,
			FullName:         m.FullName,
			CheckedInAt:      now,
			Session:          session,
		}
		return nil
	})
	switch {
	case errors.Is(err, ErrAlreadyUsed):
		// Rescanning a ticket is normal at a busy gate.
		p.deps.Logger.Info("ticket already used", zap.Error(err))
		return CheckInResult{}, err
	case err != nil:
		return CheckInResult{}, err
	}
	p.deps.Logger.Info("member checked in", memberKey(res.MemberID), zap.String("session_id", res.Session.ID.String()))
	return res, nil
}
