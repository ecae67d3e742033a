package venues

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/storage/memory"
)

const directoryYAML = `
venues:
  - name: Dunedin Town Hall
    address: 1 Harrop St, Dunedin
    region: Southern
    sessions:
      - date: 2026-09-14
        time: "10:00"
        capacity: 2
      - date: 2026-09-14
        time: "14:00"
        capacity: 5
  - name: Auckland Hall
    address: 2 Queen St, Auckland
    region: Northern
    sessions:
      - date: 2026-09-15
        time: "09:30"
        capacity: 3
`

func auckland(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Pacific/Auckland")
	require.NoError(t, err)
	return loc
}

func TestParseDirectory(t *testing.T) {
	d, err := ParseDirectory(strings.NewReader(directoryYAML))
	require.NoError(t, err)
	require.Len(t, d.Venues, 2)
	assert.Equal(t, "Dunedin Town Hall", d.Venues[0].Name)
	assert.Equal(t, models.RegionSouthern, d.Venues[0].Region)
	assert.Len(t, d.Venues[0].Sessions, 2)

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown region", "venues:\n  - name: X\n    region: Eastern\n", "unknown region"},
		{"missing name", "venues:\n  - region: Southern\n", "name is required"},
		{"duplicate", "venues:\n  - name: X\n    region: Southern\n  - name: X\n    region: Southern\n", "listed twice"},
		{"negative capacity", "venues:\n  - name: X\n    region: Southern\n    sessions:\n      - {date: 2026-09-14, time: \"10:00\", capacity: -1}\n", "negative"},
		{"unknown field", "venues:\n  - name: X\n    region: Southern\n    seats: 4\n", "seats"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDirectory(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	empty, err := ParseDirectory(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Venues)
}

func TestParseStart(t *testing.T) {
	loc := auckland(t)
	got, err := ParseStart("2026-09-14", "10:00", loc)
	require.NoError(t, err)
	// NZST is UTC+12 in September before daylight saving starts.
	assert.Equal(t, time.Date(2026, 9, 13, 22, 0, 0, 0, time.UTC), got.UTC())

	_, err = ParseStart("14/09/2026", "10:00", loc)
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	loc := auckland(t)
	d, err := ParseDirectory(strings.NewReader(directoryYAML))
	require.NoError(t, err)

	require.NoError(t, Seed(ctx, store, d, loc, zaptest.NewLogger(t)))
	sessions, err := store.ListSessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "Dunedin Town Hall", sessions[0].VenueName)
	assert.Equal(t, 2, sessions[0].Capacity)
	assert.Equal(t, "1 Harrop St, Dunedin", sessions[0].Address)

	// Reseeding with a lower capacity keeps the booked seats.
	require.NoError(t, store.IncrementReserved(ctx, sessions[0].ID))
	require.NoError(t, store.IncrementReserved(ctx, sessions[0].ID))
	d.Venues[0].Sessions[0].Capacity = 1
	d.Venues[0].Sessions[1].Capacity = 8
	require.NoError(t, Seed(ctx, store, d, loc, nil))

	again, err := store.ListSessions(ctx, models.RegionSouthern)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, sessions[0].ID, again[0].ID)
	assert.Equal(t, 2, again[0].Capacity)
	assert.Equal(t, 2, again[0].Reserved)
	assert.Equal(t, 8, again[1].Capacity)

	bad := Directory{Venues: []VenueEntry{{
		Venue:    models.Venue{Name: "Broken", Region: models.RegionCentral},
		Sessions: []SessionEntry{{Date: "soon", Time: "10:00", Capacity: 1}},
	}}}
	require.Error(t, Seed(ctx, store, bad, loc, nil))
	_, err = store.GetVenue(ctx, "Broken")
	assert.Error(t, err, "failed seed rolls back")
}
