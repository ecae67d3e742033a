package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/registration"
)

const sessionSelect = `SELECT s.id, s.venue_name, v.address, v.region, s.starts_at, s.capacity, s.reserved
	FROM sessions s JOIN venues v ON v.name = s.venue_name`

func scanSession(row pgx.Row) (models.Session, error) {
	var sess models.Session
	err := row.Scan(&sess.ID, &sess.VenueName, &sess.Address, &sess.Region, &sess.StartsAt, &sess.Capacity, &sess.Reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, registration.ErrSessionNotFound
	}
	return sess, err
}

// UpsertVenue creates or updates a venue by name.
func (s *Store) UpsertVenue(ctx context.Context, v models.Venue) error {
	const q = `INSERT INTO venues (name, address, region) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET address = EXCLUDED.address, region = EXCLUDED.region, updated_at = NOW()`
	if _, err := s.exec(ctx, q, v.Name, v.Address, v.Region); err != nil {
		return fmt.Errorf("upsert venue %s: %w", v.Name, err)
	}
	return nil
}

// UpsertSession creates a session or updates the capacity of the existing session with the
// same venue and start time. Capacity is never lowered below the seats already reserved.
func (s *Store) UpsertSession(ctx context.Context, in models.Session) (models.Session, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	const q = `INSERT INTO sessions (id, venue_name, starts_at, capacity) VALUES ($1, $2, $3, $4)
		ON CONFLICT (venue_name, starts_at) DO UPDATE SET
			capacity = CASE WHEN EXCLUDED.capacity >= sessions.reserved THEN EXCLUDED.capacity ELSE sessions.capacity END,
			updated_at = NOW()
		RETURNING id`
	var id uuid.UUID
	if err := s.queryRow(ctx, q, in.ID, in.VenueName, in.StartsAt, in.Capacity).Scan(&id); err != nil {
		return models.Session{}, fmt.Errorf("upsert session %s %s: %w", in.VenueName, in.StartsAt.Format(time.RFC3339), err)
	}
	return s.GetSession(ctx, id)
}

func (s *Store) GetVenue(ctx context.Context, name string) (models.Venue, error) {
	var v models.Venue
	err := s.queryRow(ctx, `SELECT name, address, region FROM venues WHERE name = $1`, name).
		Scan(&v.Name, &v.Address, &v.Region)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Venue{}, registration.ErrNotFound
	}
	return v, err
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (models.Session, error) {
	return scanSession(s.queryRow(ctx, sessionSelect+` WHERE s.id = $1`, id))
}

func (s *Store) FindSession(ctx context.Context, venueName string, startsAt time.Time) (models.Session, error) {
	return scanSession(s.queryRow(ctx, sessionSelect+` WHERE s.venue_name = $1 AND s.starts_at = $2`, venueName, startsAt))
}

// ListSessions returns sessions in start order. An empty region lists every session.
func (s *Store) ListSessions(ctx context.Context, region models.Region) ([]models.Session, error) {
	rows, err := s.query(ctx, sessionSelect+` WHERE ($1 = '' OR v.region = $1) ORDER BY s.starts_at, s.venue_name`, string(region))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, sess)
	}
	return list, rows.Err()
}

// IncrementReserved takes one seat with a conditional update, so concurrent callers on
// any instance cannot push reserved past capacity.
func (s *Store) IncrementReserved(ctx context.Context, id uuid.UUID) error {
	tag, err := s.exec(ctx, `UPDATE sessions SET reserved = reserved + 1, updated_at = NOW()
		WHERE id = $1 AND reserved < capacity`, id)
	if err != nil {
		if isCheckViolation(err) {
			return registration.ErrCapacityExceeded
		}
		return fmt.Errorf("reserve seat: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return registration.ErrSessionNotFound
	}
	return registration.ErrCapacityExceeded
}

func (s *Store) DecrementReserved(ctx context.Context, id uuid.UUID) error {
	tag, err := s.exec(ctx, `UPDATE sessions SET reserved = GREATEST(reserved - 1, 0), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registration.ErrSessionNotFound
	}
	return nil
}
