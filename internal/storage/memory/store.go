// Package memory is an in-process implementation of the registration store. It serialises
// every transaction behind one mutex and rolls back on error, so it honours the same
// atomicity contract as the Postgres store. It backs tests and local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/registration"
)

var (
	ErrDuplicateMember     = errors.New("duplicate member")
	ErrDuplicateCredential = errors.New("duplicate ticket credential")
)

type txKey struct{}

type state struct {
	members  map[uuid.UUID]models.Member
	tokens   map[string]uuid.UUID
	numbers  map[string]uuid.UUID
	venues   map[string]models.Venue
	sessions map[uuid.UUID]models.Session
	tickets  map[string]models.Ticket
}

func (s state) clone() state {
	out := state{
		members:  make(map[uuid.UUID]models.Member, len(s.members)),
		tokens:   make(map[string]uuid.UUID, len(s.tokens)),
		numbers:  make(map[string]uuid.UUID, len(s.numbers)),
		venues:   make(map[string]models.Venue, len(s.venues)),
		sessions: make(map[uuid.UUID]models.Session, len(s.sessions)),
		tickets:  make(map[string]models.Ticket, len(s.tickets)),
	}
	for k, v := range s.members {
		out.members[k] = v
	}
	for k, v := range s.tokens {
		out.tokens[k] = v
	}
	for k, v := range s.numbers {
		out.numbers[k] = v
	}
	for k, v := range s.venues {
		out.venues[k] = v
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	for k, v := range s.tickets {
		out.tickets[k] = v
	}
	return out
}

// Store keeps members, sessions and tickets in memory.
type Store struct {
	mu    sync.Mutex
	state state
}

var _ registration.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{state: state{}.clone()}
}

// WithTx runs fn with exclusive access to the store. If fn fails, every write it made is
// discarded.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// do runs fn against the state, taking the lock unless ctx already holds it.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if s.inTx(ctx) {
		return fn(&s.state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.state)
}

// CreateMember imports a member. Token and membership number must be unique. Stage and
// attendance default to the starting values when left empty.
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
	return s.do(ctx, func(st *state) error {
		number := strings.ToUpper(m.MembershipNumber)
		if _, ok := st.members[m.ID]; ok {
			return ErrDuplicateMember
		}
		if _, ok := st.tokens[m.AccessToken]; ok {
			return ErrDuplicateMember
		}
		if _, ok := st.numbers[number]; ok {
			return ErrDuplicateMember
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
			m.UpdatedAt = m.CreatedAt
		}
		st.members[m.ID] = cloneMember(*m)
		st.tokens[m.AccessToken] = m.ID
		st.numbers[number] = m.ID
		return nil
	})
}

func (s *Store) GetMember(ctx context.Context, id uuid.UUID) (models.Member, error) {
	var out models.Member
	err := s.do(ctx, func(st *state) error {
		m, ok := st.members[id]
		if !ok {
			return registration.ErrNotFound
		}
		out = cloneMember(m)
		return nil
	})
	return out, err
}

func (s *Store) GetMemberByToken(ctx context.Context, token string) (models.Member, error) {
	var out models.Member
	err := s.do(ctx, func(st *state) error {
		id, ok := st.tokens[token]
		if !ok {
			return registration.ErrNotFound
		}
		out = cloneMember(st.members[id])
		return nil
	})
	return out, err
}

// LockMember reads a member. Inside WithTx the whole store is already held exclusively.
func (s *Store) LockMember(ctx context.Context, id uuid.UUID) (models.Member, error) {
	return s.GetMember(ctx, id)
}

func (s *Store) UpdateMember(ctx context.Context, m models.Member) error {
	return s.do(ctx, func(st *state) error {
		if _, ok := st.members[m.ID]; !ok {
			return registration.ErrNotFound
		}
		st.members[m.ID] = cloneMember(m)
		return nil
	})
}

// UpsertVenue creates or updates a venue by name.
func (s *Store) UpsertVenue(ctx context.Context, v models.Venue) error {
	return s.do(ctx, func(st *state) error {
		st.venues[v.Name] = v
		for id, sess := range st.sessions {
			if sess.VenueName == v.Name {
				sess.Address = v.Address
				sess.Region = v.Region
				st.sessions[id] = sess
			}
		}
		return nil
	})
}

// UpsertSession creates a session or updates the capacity of the existing session with the
// same venue and start time. Capacity is never lowered below the seats already reserved.
func (s *Store) UpsertSession(ctx context.Context, in models.Session) (models.Session, error) {
	var out models.Session
	err := s.do(ctx, func(st *state) error {
		venue, ok := st.venues[in.VenueName]
		if !ok {
			return fmt.Errorf("upsert session: venue %q: %w", in.VenueName, registration.ErrNotFound)
		}
		for id, sess := range st.sessions {
			if sess.VenueName == in.VenueName && sess.StartsAt.Equal(in.StartsAt) {
				if in.Capacity >= sess.Reserved {
					sess.Capacity = in.Capacity
				}
				st.sessions[id] = sess
				out = sess
				return nil
			}
		}
		sess := models.Session{
			ID:        in.ID,
			VenueName: venue.Name,
			Address:   venue.Address,
			Region:    venue.Region,
			StartsAt:  in.StartsAt,
			Capacity:  in.Capacity,
		}
		if sess.ID == uuid.Nil {
			sess.ID = uuid.New()
		}
		st.sessions[sess.ID] = sess
		out = sess
		return nil
	})
	return out, err
}

func (s *Store) GetVenue(ctx context.Context, name string) (models.Venue, error) {
	var out models.Venue
	err := s.do(ctx, func(st *state) error {
		v, ok := st.venues[name]
		if !ok {
			return registration.ErrNotFound
		}
		out = v
		return nil
	})
	return out, err
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (models.Session, error) {
	var out models.Session
	err := s.do(ctx, func(st *state) error {
		sess, ok := st.sessions[id]
		if !ok {
			return registration.ErrSessionNotFound
		}
		out = sess
		return nil
	})
	return out, err
}

func (s *Store) FindSession(ctx context.Context, venueName string, startsAt time.Time) (models.Session, error) {
	var out models.Session
	err := s.do(ctx, func(st *state) error {
		for _, sess := range st.sessions {
			if sess.VenueName == venueName && sess.StartsAt.Equal(startsAt) {
				out = sess
				return nil
			}
		}
		return registration.ErrSessionNotFound
	})
	return out, err
}

func (s *Store) ListSessions(ctx context.Context, region models.Region) ([]models.Session, error) {
	var out []models.Session
	err := s.do(ctx, func(st *state) error {
		for _, sess := range st.sessions {
			if region == "" || sess.Region == region {
				out = append(out, sess)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].VenueName < out[j].VenueName
	})
	return out, err
}

func (s *Store) IncrementReserved(ctx context.Context, id uuid.UUID) error {
	return s.do(ctx, func(st *state) error {
		sess, ok := st.sessions[id]
		if !ok {
			return registration.ErrSessionNotFound
		}
		if sess.Reserved >= sess.Capacity {
			return registration.ErrCapacityExceeded
		}
		sess.Reserved++
		st.sessions[id] = sess
		return nil
	})
}

func (s *Store) DecrementReserved(ctx context.Context, id uuid.UUID) error {
	return s.do(ctx, func(st *state) error {
		sess, ok := st.sessions[id]
		if !ok {
			return registration.ErrSessionNotFound
		}
		if sess.Reserved > 0 {
			sess.Reserved--
			st.sessions[id] = sess
		}
		return nil
	})
}

func (s *Store) CreateTicket(ctx context.Context, t models.Ticket) error {
	return s.do(ctx, func(st *state) error {
		if _, ok := st.tickets[t.Credential]; ok {
			return ErrDuplicateCredential
		}
		st.tickets[t.Credential] = cloneTicket(t)
		return nil
	})
}

func (s *Store) GetTicket(ctx context.Context, credential string) (models.Ticket, error) {
	var out models.Ticket
	err := s.do(ctx, func(st *state) error {
		t, ok := st.tickets[credential]
		if !ok {
			return registration.ErrNotFound
		}
		out = cloneTicket(t)
		return nil
	})
	return out, err
}

func (s *Store) LockTicket(ctx context.Context, credential string) (models.Ticket, error) {
	return s.GetTicket(ctx, credential)
}

func (s *Store) UpdateTicket(ctx context.Context, t models.Ticket) error {
	return s.do(ctx, func(st *state) error {
		if _, ok := st.tickets[t.Credential]; !ok {
			return registration.ErrNotFound
		}
		st.tickets[t.Credential] = cloneTicket(t)
		return nil
	})
}

func cloneMember(m models.Member) models.Member {
	m.Email = cloneString(m.Email)
	m.Mobile = cloneString(m.Mobile)
	m.TicketCredential = cloneString(m.TicketCredential)
	m.CodeExpiresAt = cloneTime(m.CodeExpiresAt)
	m.CheckedInAt = cloneTime(m.CheckedInAt)
	if m.SessionID != nil {
		id := *m.SessionID
		m.SessionID = &id
	}
	if m.Preferences != nil {
		p := *m.Preferences
		p.PreferredVenues = append([]string(nil), p.PreferredVenues...)
		p.PreferredTimes = append([]string(nil), p.PreferredTimes...)
		m.Preferences = &p
	}
	if m.SpecialVoteRequest != nil {
		a := *m.SpecialVoteRequest
		if a.Approved != nil {
			v := *a.Approved
			a.Approved = &v
		}
		a.DecidedAt = cloneTime(a.DecidedAt)
		m.SpecialVoteRequest = &a
	}
	return m
}

func cloneTicket(t models.Ticket) models.Ticket {
	t.ConsumedAt = cloneTime(t.ConsumedAt)
	t.VoidedAt = cloneTime(t.VoidedAt)
	return t
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
