package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/registration"
	"github.com/union-bmm/backend/internal/testutil"
)

func seedSession(t *testing.T, ctx context.Context, store *Store, capacity int) models.Session {
	t.Helper()
	require.NoError(t, store.UpsertVenue(ctx, models.Venue{Name: "Dunedin Town Hall", Address: "1 Moray Pl", Region: models.RegionSouthern}))
	sess, err := store.UpsertSession(ctx, models.Session{
		VenueName: "Dunedin Town Hall",
		StartsAt:  time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC),
		Capacity:  capacity,
	})
	require.NoError(t, err)
	return sess
}

func TestStore(t *testing.T) {
	pool := testutil.NewTestPool(t)
	store := NewStore(pool)

	t.Run("member round trip keeps preferences and special vote request", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		sess := seedSession(t, ctx, store, 10)

		email := "aroha@example.org"
		m := &models.Member{MembershipNumber: "M123", FullName: "Aroha Ngata", Email: &email, Region: models.RegionSouthern, AccessToken: "tok-1"}
		require.NoError(t, store.CreateMember(ctx, m))
		assert.Equal(t, models.StageNotStarted, m.Stage)

		approved := true
		now := time.Now().UTC().Truncate(time.Microsecond)
		m.Stage = models.StageAttendanceDeclined
		m.Preferences = &models.Preferences{PreferredVenues: []string{sess.VenueName}, Willingness: models.WillingnessYes, SubmittedAt: now}
		m.SpecialVote = models.SpecialVoteDecided
		m.SpecialVoteRequest = &models.SpecialVoteApplication{Reason: "overseas", Evidence: "ticket", ContactPhone: "021", RequestedAt: now, Approved: &approved, DecidedAt: &now}
		m.UpdatedAt = now
		require.NoError(t, store.UpdateMember(ctx, *m))

		got, err := store.GetMemberByToken(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, models.StageAttendanceDeclined, got.Stage)
		require.NotNil(t, got.Preferences)
		assert.Equal(t, []string{sess.VenueName}, got.Preferences.PreferredVenues)
		require.NotNil(t, got.SpecialVoteRequest)
		require.NotNil(t, got.SpecialVoteRequest.Approved)
		assert.True(t, *got.SpecialVoteRequest.Approved)
		assert.Equal(t, "aroha@example.org", *got.Email)
		assert.Nil(t, got.Mobile)

		dup := &models.Member{MembershipNumber: "m123", FullName: "Someone", Region: models.RegionSouthern, AccessToken: "tok-2"}
		assert.ErrorIs(t, store.CreateMember(ctx, dup), ErrDuplicate)

		_, err = store.GetMember(ctx, uuid.New())
		assert.ErrorIs(t, err, registration.ErrNotFound)
	})

	t.Run("reserve stops at capacity and release never goes negative", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		sess := seedSession(t, ctx, store, 1)

		require.NoError(t, store.IncrementReserved(ctx, sess.ID))
		assert.ErrorIs(t, store.IncrementReserved(ctx, sess.ID), registration.ErrCapacityExceeded)
		assert.ErrorIs(t, store.IncrementReserved(ctx, uuid.New()), registration.ErrSessionNotFound)

		require.NoError(t, store.DecrementReserved(ctx, sess.ID))
		require.NoError(t, store.DecrementReserved(ctx, sess.ID))
		got, err := store.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Reserved)
	})

	t.Run("concurrent reservations never exceed capacity", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		sess := seedSession(t, ctx, store, 3)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.IncrementReserved(ctx, sess.ID)
				if err == nil {
					mu.Lock()
					success++
					mu.Unlock()
					return
				}
				if !errors.Is(err, registration.ErrCapacityExceeded) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, success)
		got, err := store.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.Reserved)
	})

	t.Run("upsert session keeps capacity above reserved", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		sess := seedSession(t, ctx, store, 2)
		require.NoError(t, store.IncrementReserved(ctx, sess.ID))
		require.NoError(t, store.IncrementReserved(ctx, sess.ID))

		again, err := store.UpsertSession(ctx, models.Session{VenueName: sess.VenueName, StartsAt: sess.StartsAt, Capacity: 1})
		require.NoError(t, err)
		assert.Equal(t, sess.ID, again.ID)
		assert.Equal(t, 2, again.Capacity)

		again, err = store.UpsertSession(ctx, models.Session{VenueName: sess.VenueName, StartsAt: sess.StartsAt, Capacity: 5})
		require.NoError(t, err)
		assert.Equal(t, 5, again.Capacity)

		list, err := store.ListSessions(ctx, models.RegionSouthern)
		require.NoError(t, err)
		assert.Len(t, list, 1)
		list, err = store.ListSessions(ctx, models.RegionNorthern)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("failed transaction rolls back the reservation", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		sess := seedSession(t, ctx, store, 1)

		boom := errors.New("boom")
		err := store.WithTx(ctx, func(ctx context.Context) error {
			require.NoError(t, store.IncrementReserved(ctx, sess.ID))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := store.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Reserved)
	})

	t.Run("ticket lifecycle", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		sess := seedSession(t, ctx, store, 1)
		m := &models.Member{MembershipNumber: "M9", FullName: "Tama", Region: models.RegionSouthern, AccessToken: "tok-9"}
		require.NoError(t, store.CreateMember(ctx, m))

		tk := models.Ticket{ID: uuid.New(), Credential: "cred-1", MemberID: m.ID, SessionID: sess.ID, IssuedAt: time.Now().UTC()}
		require.NoError(t, store.CreateTicket(ctx, tk))
		assert.ErrorIs(t, store.CreateTicket(ctx, models.Ticket{ID: uuid.New(), Credential: "cred-1", MemberID: m.ID, SessionID: sess.ID, IssuedAt: time.Now().UTC()}), ErrDuplicate)

		err := store.WithTx(ctx, func(ctx context.Context) error {
			locked, err := store.LockTicket(ctx, "cred-1")
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			locked.ConsumedAt = &now
			return store.UpdateTicket(ctx, locked)
		})
		require.NoError(t, err)

		got, err := store.GetTicket(ctx, "cred-1")
		require.NoError(t, err)
		assert.NotNil(t, got.ConsumedAt)

		_, err = store.GetTicket(ctx, "missing")
		assert.ErrorIs(t, err, registration.ErrNotFound)
	})
}
