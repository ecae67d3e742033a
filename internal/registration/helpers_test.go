package registration_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/union-bmm/backend/internal/clock"
	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/registration"
	"github.com/union-bmm/backend/internal/storage/memory"
	"github.com/union-bmm/backend/pkg/utils"
)

var meetingStart = time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu      sync.Mutex
	codes   []registration.CodeIssued
	tickets []registration.TicketReady
}

func (n *recordingNotifier) CodeIssued(_ context.Context, evt registration.CodeIssued) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, evt)
	return nil
}

func (n *recordingNotifier) TicketReady(_ context.Context, evt registration.TicketReady) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tickets = append(n.tickets, evt)
	return nil
}

func (n *recordingNotifier) lastCode(t *testing.T) registration.CodeIssued {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.codes)
	return n.codes[len(n.codes)-1]
}

func (n *recordingNotifier) ticketEvents() []registration.TicketReady {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]registration.TicketReady(nil), n.tickets...)
}

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

type harness struct {
	store    *memory.Store
	clock    *clock.Manual
	notifier *recordingNotifier
	limiter  *countingLimiter

	verifier  *registration.Verifier
	allocator *registration.Allocator
	tickets   *registration.TicketIssuer
	machine   *registration.StageMachine
	checkin   *registration.CheckInProcessor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    memory.New(),
		clock:    clock.NewManual(meetingStart.Add(-30 * 24 * time.Hour)),
		notifier: &recordingNotifier{},
		limiter:  &countingLimiter{},
	}
	deps := registration.Deps{
		Store:    h.store,
		Clock:    h.clock,
		Notifier: h.notifier,
		Limiter:  h.limiter,
		Logger:   zaptest.NewLogger(t),
	}
	policy := registration.Policy{
		SpecialVoteRegion: models.RegionSouthern,
		CodeTTL:           15 * time.Minute,
		CodeRequestLimit:  3,
		VerifyAttempts:    5,
		LimitWindow:       time.Hour,
	}
	h.verifier = registration.NewVerifier(deps, policy)
	h.allocator = registration.NewAllocator(h.store)
	h.tickets = registration.NewTicketIssuer(deps)
	h.machine = registration.NewStageMachine(deps, h.allocator, h.tickets, registration.NewEligibility(policy.SpecialVoteRegion))
	h.checkin = registration.NewCheckInProcessor(deps)
	return h
}

func (h *harness) addMember(t *testing.T, number string, region models.Region) models.Member {
	t.Helper()
	email := number + "@example.org"
	m := &models.Member{
		MembershipNumber: number,
		FullName:         "Member " + number,
		Email:            &email,
		Region:           region,
		AccessToken:      "token-" + number,
	}
	require.NoError(t, h.store.CreateMember(context.Background(), m))
	return *m
}

func (h *harness) addSession(t *testing.T, venue string, region models.Region, capacity int) models.Session {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.UpsertVenue(ctx, models.Venue{Name: venue, Address: venue + " Road", Region: region}))
	sess, err := h.store.UpsertSession(ctx, models.Session{VenueName: venue, StartsAt: meetingStart, Capacity: capacity})
	require.NoError(t, err)
	return sess
}

// primeCode stores a known verification code for m, as if IssueCode had sent it.
func (h *harness) primeCode(t *testing.T, memberID uuid.UUID, code string) {
	t.Helper()
	ctx := context.Background()
	m, err := h.store.GetMember(ctx, memberID)
	require.NoError(t, err)
	hash, err := utils.HashSecret(code)
	require.NoError(t, err)
	expires := h.clock.Now().Add(15 * time.Minute)
	m.CodeHash = hash
	m.CodeExpiresAt = &expires
	require.NoError(t, h.store.UpdateMember(ctx, m))
}

func (h *harness) member(t *testing.T, id uuid.UUID) models.Member {
	t.Helper()
	m, err := h.store.GetMember(context.Background(), id)
	require.NoError(t, err)
	return m
}

func (h *harness) session(t *testing.T, id uuid.UUID) models.Session {
	t.Helper()
	s, err := h.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	return s
}

// register walks m from not_started to preferences_submitted for the given venue.
func (h *harness) register(t *testing.T, m models.Member, venue string, willing models.Willingness) models.Member {
	t.Helper()
	ctx := context.Background()
	h.primeCode(t, m.ID, "123456")
	_, err := h.verifier.Verify(ctx, m.AccessToken, m.MembershipNumber, "123456")
	require.NoError(t, err)
	out, err := h.machine.SubmitPreferences(ctx, m.ID, registration.PreferencesInput{
		PreferredVenues: []string{venue},
		Willingness:     willing,
	})
	require.NoError(t, err)
	return out
}

// assigned walks m to venue_assigned at sess.
func (h *harness) assigned(t *testing.T, m models.Member, sess models.Session) models.Member {
	t.Helper()
	h.register(t, m, sess.VenueName, models.WillingnessYes)
	out, err := h.machine.AssignVenue(context.Background(), m.ID, sess.ID)
	require.NoError(t, err)
	return out
}
