package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/registration"
)

const memberColumns = `id, membership_number, full_name, email, mobile, region,
	access_token, code_hash, code_expires_at,
	stage, preferences, attendance, absence_reason, special_vote, special_vote_request,
	session_id, ticket_credential, checked_in_at, created_at, updated_at`

func scanMember(row pgx.Row) (models.Member, error) {
	var m models.Member
	err := row.Scan(
		&m.ID, &m.MembershipNumber, &m.FullName, &m.Email, &m.Mobile, &m.Region,
		&m.AccessToken, &m.CodeHash, &m.CodeExpiresAt,
		&m.Stage, &m.Preferences, &m.Attendance, &m.AbsenceReason, &m.SpecialVote, &m.SpecialVoteRequest,
		&m.SessionID, &m.TicketCredential, &m.CheckedInAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Member{}, registration.ErrNotFound
	}
	return m, err
}

// CreateMember imports a member from the roll. Stage and attendance default to the
// starting values when left empty.
func (s *Store) CreateMember(ctx context.Context, m *models.Member) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Stage == "" {
		m.Stage = models.StageNotStarted
	}
	if m.Attendance == "" {
		m.Attendance = models.AttendanceUndecided
	}
	if m.SpecialVote == "" {
		m.SpecialVote = models.SpecialVoteNone
	}
	const q = `INSERT INTO members (id, membership_number, full_name, email, mobile, region, access_token, stage, attendance, special_vote)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`
	err := s.queryRow(ctx, q, m.ID, m.MembershipNumber, m.FullName, m.Email, m.Mobile, m.Region,
		m.AccessToken, m.Stage, m.Attendance, m.SpecialVote).Scan(&m.CreatedAt, &m.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("create member %s: %w", m.MembershipNumber, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, id uuid.UUID) (models.Member, error) {
	return scanMember(s.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
}

func (s *Store) GetMemberByToken(ctx context.Context, token string) (models.Member, error) {
	return scanMember(s.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE access_token = $1`, token))
}

// LockMember reads the member row FOR UPDATE. Call it inside WithTx.
func (s *Store) LockMember(ctx context.Context, id uuid.UUID) (models.Member, error) {
	return scanMember(s.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1 FOR UPDATE`, id))
}

// UpdateMember writes every mutable registration column. Identity columns and the access
// token are never rewritten.
func (s *Store) UpdateMember(ctx context.Context, m models.Member) error {
	const q = `UPDATE members SET
		code_hash = $2, code_expires_at = $3,
		stage = $4, preferences = $5, attendance = $6, absence_reason = $7,
		special_vote = $8, special_vote_request = $9,
		session_id = $10, ticket_credential = $11, checked_in_at = $12, updated_at = $13
		WHERE id = $1`
	tag, err := s.exec(ctx, q, m.ID,
		m.CodeHash, m.CodeExpiresAt,
		m.Stage, m.Preferences, m.Attendance, m.AbsenceReason,
		m.SpecialVote, m.SpecialVoteRequest,
		m.SessionID, m.TicketCredential, m.CheckedInAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registration.ErrNotFound
	}
	return nil
}
