package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/registration"
)

const ticketColumns = `id, credential, member_id, session_id, issued_at, consumed_at, voided_at`

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.Credential, &t.MemberID, &t.SessionID, &t.IssuedAt, &t.ConsumedAt, &t.VoidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, registration.ErrNotFound
	}
	return t, err
}

func (s *Store) CreateTicket(ctx context.Context, t models.Ticket) error {
	const q = `INSERT INTO tickets (` + ticketColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.exec(ctx, q, t.ID, t.Credential, t.MemberID, t.SessionID, t.IssuedAt, t.ConsumedAt, t.VoidedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("create ticket: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (s *Store) GetTicket(ctx context.Context, credential string) (models.Ticket, error) {
	return scanTicket(s.queryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE credential = $1`, credential))
}

// LockTicket reads the ticket FOR UPDATE so two gates scanning the same credential
// serialise on the row.
func (s *Store) LockTicket(ctx context.Context, credential string) (models.Ticket, error) {
	return scanTicket(s.queryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE credential = $1 FOR UPDATE`, credential))
}

func (s *Store) UpdateTicket(ctx context.Context, t models.Ticket) error {
	tag, err := s.exec(ctx, `UPDATE tickets SET consumed_at = $2, voided_at = $3 WHERE credential = $1`,
		t.Credential, t.ConsumedAt, t.VoidedAt)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registration.ErrNotFound
	}
	return nil
}
