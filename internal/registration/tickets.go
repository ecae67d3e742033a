package registration

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/union-bmm/backend/internal/models"
)

const credentialBytes = 32

// TicketIssuer creates check-in credentials for confirmed members.
type TicketIssuer struct {
	deps Deps
}

// NewTicketIssuer creates a ticket issuer.
func NewTicketIssuer(deps Deps) *TicketIssuer {
	return &TicketIssuer{deps: deps.withDefaults()}
}

// Issue returns the member's live ticket, creating one if none exists. The member must be
// attendance_confirmed.
func (i *TicketIssuer) Issue(ctx context.Context, memberID uuid.UUID) (models.Ticket, error) {
	var (
		ticket  models.Ticket
		created bool
		member  models.Member
	)
	err := i.deps.Store.WithTx(ctx, func(ctx context.Context) error {
		m, err := i.deps.Store.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		if err := issueTicket.check(m); err != nil {
			return err
		}
		ticket, created, err = i.issue(ctx, &m)
		if err != nil {
			return err
		}
		if created {
			m.UpdatedAt = i.deps.Clock.Now()
			if err := i.deps.Store.UpdateMember(ctx, m); err != nil {
				return err
			}
		}
		member = m
		return nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	if created {
		i.announce(ctx, member, ticket, false)
	}
	return ticket, nil
}

// issue attaches a live ticket to m inside the caller's transaction. The caller persists m.
func (i *TicketIssuer) issue(ctx context.Context, m *models.Member) (models.Ticket, bool, error) {
	if m.SessionID == nil {
		return models.Ticket{}, false, fmt.Errorf("%w: no session assigned", ErrIllegalTransition)
	}
	if m.HasTicket() {
		t, err := i.deps.Store.GetTicket(ctx, *m.TicketCredential)
		switch {
		case err == nil && t.Live():
			return t, false, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return models.Ticket{}, false, err
		}
	}

	credential, err := NewCredential()
	if err != nil {
		return models.Ticket{}, false, fmt.Errorf("generate credential: %w", err)
	}
	t := models.Ticket{
		ID:         uuid.New(),
		Credential: credential,
		MemberID:   m.ID,
		SessionID:  *m.SessionID,
		IssuedAt:   i.deps.Clock.Now(),
	}
	if err := i.deps.Store.CreateTicket(ctx, t); err != nil {
		return models.Ticket{}, false, err
	}
	m.TicketCredential = &credential
	return t, true, nil
}

// void retires the member's current ticket inside the caller's transaction.
func (i *TicketIssuer) void(ctx context.Context, m *models.Member) error {
	if !m.HasTicket() {
		return nil
	}
	t, err := i.deps.Store.LockTicket(ctx, *m.TicketCredential)
	if errors.Is(err, ErrNotFound) {
		m.TicketCredential = nil
		return nil
	}
	if err != nil {
		return err
	}
	if t.ConsumedAt != nil {
		return ErrAlreadyUsed
	}
	if t.VoidedAt == nil {
		now := i.deps.Clock.Now()
		t.VoidedAt = &now
		if err := i.deps.Store.UpdateTicket(ctx, t); err != nil {
			return err
		}
	}
	m.TicketCredential = nil
	return nil
}

// announce emits TicketReady after commit.
func (i *TicketIssuer) announce(ctx context.Context, m models.Member, t models.Ticket, reissued bool) {
	session, err := i.deps.Store.GetSession(ctx, t.SessionID)
	if err != nil {
		i.deps.Logger.Error("load session for ticket notification failed", zap.Error(err), memberKey(m.ID))
		return
	}
	evt := TicketReady{
		MemberID:         m.ID,
		MembershipNumber: m.MembershipNumber,
		FullName:         m.FullName,
		Email:            m.Email,
		Mobile:           m.Mobile,
		Credential:       t.Credential,
		Session:          session,
		Reissued:         reissued,
	}
	if err := i.deps.Notifier.TicketReady(ctx, evt); err != nil {
		i.deps.Logger.Error("notify ticket ready failed", zap.Error(err), memberKey(m.ID))
		return
	}
	i.deps.Logger.Info("ticket issued", memberKey(m.ID), zap.String("session_id", t.SessionID.String()), zap.Bool("reissued", reissued))
}

// NewCredential returns an unguessable, URL-safe ticket credential.
func NewCredential() (string, error) {
	b := make([]byte, credentialBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
