package models

import (
	"time"

	"github.com/google/uuid"
)

// Venue is a meeting location. Venues are created from the venue directory file.
type Venue struct {
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
	Region  Region `json:"region" yaml:"region"`
}

// Session is a bookable meeting slot at a venue.
type Session struct {
	ID        uuid.UUID `json:"id"`
	VenueName string    `json:"venue_name"`
	Address   string    `json:"address"`
	Region    Region    `json:"region"`
	StartsAt  time.Time `json:"starts_at"`
	Capacity  int       `json:"capacity"`
	Reserved  int       `json:"reserved"`
}

// Remaining returns the number of seats still free.
func (s Session) Remaining() int {
	if s.Reserved >= s.Capacity {
		return 0
	}
	return s.Capacity - s.Reserved
}
