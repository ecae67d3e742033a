package models

import (
	"time"

	"github.com/google/uuid"
)

// Ticket is a single-use check-in credential bound to a member and session.
type Ticket struct {
	ID         uuid.UUID  `json:"id"`
	Credential string     `json:"credential"`
	MemberID   uuid.UUID  `json:"member_id"`
	SessionID  uuid.UUID  `json:"session_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	VoidedAt   *time.Time `json:"voided_at,omitempty"`
}

// Live reports whether the ticket can still be presented at the gate.
func (t Ticket) Live() bool {
	return t.VoidedAt == nil
}
