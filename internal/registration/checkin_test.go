package registration_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/registration"
)

func TestCheckIn(t *testing.T) {
	ctx := context.Background()

	t.Run("credential is consumed exactly once", func(t *testing.T) {
		h := newHarness(t)
		sess := h.addSession(t, "Gore Town Hall", models.RegionSouthern, 2)
		m := h.assigned(t, h.addMember(t, "M1", models.RegionSouthern), sess)
		confirmed, err := h.machine.ConfirmAttendance(ctx, m.ID, true, "")
		require.NoError(t, err)
		credential := confirmed.Ticket.Credential

		res, err := h.checkin.CheckIn(ctx, credential)
		require.NoError(t, err)
		assert.Equal(t, m.ID, res.MemberID)
		assert.Equal(t, sess.ID, res.Session.ID)
		firstScan := h.clock.Now()

		h.clock.Advance(5 * time.Minute)
		_, err = h.checkin.CheckIn(ctx, credential)
		assert.ErrorIs(t, err, registration.ErrAlreadyUsed)

		ticket, err := h.store.GetTicket(ctx, credential)
		require.NoError(t, err)
		require.NotNil(t, ticket.ConsumedAt)
		assert.Equal(t, firstScan, *ticket.ConsumedAt)

		after := h.member(t, m.ID)
		assert.Equal(t, models.StageCheckedIn, after.Stage)
		assert.Equal(t, firstScan, *after.CheckedInAt)
	})

	t.Run("unknown credential", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.checkin.CheckIn(ctx, "not-a-ticket")
		assert.ErrorIs(t, err, registration.ErrNotFound)
		_, err = h.checkin.CheckIn(ctx, "")
		assert.ErrorIs(t, err, registration.ErrNotFound)
	})

	t.Run("concurrent scans admit one", func(t *testing.T) {
		h := newHarness(t)
		sess := h.addSession(t, "Gore Town Hall", models.RegionSouthern, 2)
		m := h.assigned(t, h.addMember(t, "M1", models.RegionSouthern), sess)
		confirmed, err := h.machine.ConfirmAttendance(ctx, m.ID, true, "")
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			admitted int
			rejected int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.checkin.CheckIn(ctx, confirmed.Ticket.Credential)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					admitted++
				case errors.Is(err, registration.ErrAlreadyUsed):
					rejected++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, admitted)
		assert.Equal(t, 7, rejected)
	})
}

func TestTicketIssuer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := h.addSession(t, "Gore Town Hall", models.RegionSouthern, 2)
	m := h.assigned(t, h.addMember(t, "M1", models.RegionSouthern), sess)

	_, err := h.tickets.Issue(ctx, m.ID)
	assert.ErrorIs(t, err, registration.ErrIllegalTransition)

	confirmed, err := h.machine.ConfirmAttendance(ctx, m.ID, true, "")
	require.NoError(t, err)

	again, err := h.tickets.Issue(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, confirmed.Ticket.Credential, again.Credential)
	assert.Equal(t, sess.ID, again.SessionID)

	c1, err := registration.NewCredential()
	require.NoError(t, err)
	c2, err := registration.NewCredential()
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
	assert.Len(t, c1, 43)
}

func TestEndToEndRegistration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	venue := h.addSession(t, "V", models.RegionSouthern, 1)
	m := h.addMember(t, "M123", models.RegionSouthern)
	h.primeCode(t, m.ID, "000111")

	verified, err := h.verifier.Verify(ctx, m.AccessToken, "M123", "000111")
	require.NoError(t, err)
	assert.Equal(t, models.StageVerified, verified.Stage)

	submitted, err := h.machine.SubmitPreferences(ctx, m.ID, registration.PreferencesInput{
		PreferredVenues: []string{"V"},
		Willingness:     models.WillingnessYes,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StagePreferencesSubmitted, submitted.Stage)

	assigned, err := h.machine.AssignVenue(ctx, m.ID, venue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageVenueAssigned, assigned.Stage)
	assert.Equal(t, 1, h.session(t, venue.ID).Reserved)

	confirmed, err := h.machine.ConfirmAttendance(ctx, m.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, models.StageAttendanceConfirmed, confirmed.Member.Stage)
	require.NotNil(t, confirmed.Ticket)
	assert.True(t, confirmed.Member.HasTicket())

	events := h.notifier.ticketEvents()
	require.Len(t, events, 1)
	assert.Equal(t, confirmed.Ticket.Credential, events[0].Credential)

	_, err = h.checkin.CheckIn(ctx, confirmed.Ticket.Credential)
	require.NoError(t, err)
	_, err = h.checkin.CheckIn(ctx, confirmed.Ticket.Credential)
	assert.ErrorIs(t, err, registration.ErrAlreadyUsed)
}

func TestLastSeatRace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	venue := h.addSession(t, "V", models.RegionSouthern, 1)
	a := h.register(t, h.addMember(t, "A1", models.RegionSouthern), "V", models.WillingnessYes)
	b := h.register(t, h.addMember(t, "B1", models.RegionSouthern), "V", models.WillingnessYes)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, m := range []models.Member{a, b} {
		wg.Add(1)
		go func(i int, m models.Member) {
			defer wg.Done()
			_, errs[i] = h.machine.AssignVenue(ctx, m.ID, venue.ID)
		}(i, m)
	}
	wg.Wait()

	var ok, full int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, registration.ErrCapacityExceeded):
			full++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, full)
	assert.Equal(t, 1, h.session(t, venue.ID).Reserved)
}
