package venues

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/union-bmm/backend/internal/models"
)

// Directory is the venue directory file.
//
//	venues:
//	  - name: Dunedin Town Hall
//	    address: 1 Harrop St, Dunedin
//	    region: Southern
//	    sessions:
//	      - date: 2026-09-14
//	        time: "10:00"
//	        capacity: 400
type Directory struct {
	Venues []VenueEntry `yaml:"venues"`
}

// VenueEntry is one venue and its sessions.
type VenueEntry struct {
	models.Venue `yaml:",inline"`
	Sessions     []SessionEntry `yaml:"sessions"`
}

// SessionEntry is one session. Date and time are wall clock in the event timezone.
type SessionEntry struct {
	Date     string `yaml:"date"`
	Time     string `yaml:"time"`
	Capacity int    `yaml:"capacity"`
}

// Writer is the part of the store the directory is seeded through.
type Writer interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertVenue(ctx context.Context, v models.Venue) error
	UpsertSession(ctx context.Context, s models.Session) (models.Session, error)
}

// ParseDirectory decodes and validates a directory.
func ParseDirectory(r io.Reader) (Directory, error) {
	var d Directory
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil && err != io.EOF {
		return Directory{}, fmt.Errorf("decode venue directory: %w", err)
	}
	seen := make(map[string]struct{}, len(d.Venues))
	for i := range d.Venues {
		v := &d.Venues[i]
		v.Name = strings.TrimSpace(v.Name)
		if v.Name == "" {
			return Directory{}, fmt.Errorf("venue %d: name is required", i+1)
		}
		if _, dup := seen[v.Name]; dup {
			return Directory{}, fmt.Errorf("venue %q listed twice", v.Name)
		}
		seen[v.Name] = struct{}{}
		if !v.Region.Valid() {
			return Directory{}, fmt.Errorf("venue %q: unknown region %q", v.Name, v.Region)
		}
		for j, s := range v.Sessions {
			if s.Capacity < 0 {
				return Directory{}, fmt.Errorf("venue %q session %d: capacity must not be negative", v.Name, j+1)
			}
		}
	}
	return d, nil
}

// LoadFile reads a directory from path.
func LoadFile(path string) (Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return Directory{}, err
	}
	defer f.Close()
	return ParseDirectory(f)
}

// ParseStart turns a directory date and time into an instant in loc.
func ParseStart(date, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(date)+" "+strings.TrimSpace(clock), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session start %q %q: %w", date, clock, err)
	}
	return t, nil
}

// Seed upserts every venue and session in one transaction. Capacities are updated in place;
// reserved counts are never touched.
func Seed(ctx context.Context, w Writer, d Directory, loc *time.Location, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	sessions := 0
	err := w.WithTx(ctx, func(ctx context.Context) error {
		for _, v := range d.Venues {
			if err := w.UpsertVenue(ctx, v.Venue); err != nil {
				return err
			}
			for _, s := range v.Sessions {
				start, err := ParseStart(s.Date, s.Time, loc)
				if err != nil {
					return fmt.Errorf("venue %q: %w", v.Name, err)
				}
				out, err := w.UpsertSession(ctx, models.Session{VenueName: v.Name, StartsAt: start, Capacity: s.Capacity})
				if err != nil {
					return err
				}
				if out.Capacity != s.Capacity {
					logger.Warn("session capacity kept above reserved seats",
						zap.String("venue", v.Name), zap.Time("starts_at", start),
						zap.Int("requested", s.Capacity), zap.Int("reserved", out.Reserved))
				}
				sessions++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("venue directory seeded", zap.Int("venues", len(d.Venues)), zap.Int("sessions", sessions))
	return nil
}
