package models

import (
	"time"

	"github.com/google/uuid"
)

// Region is one of the union's fixed home regions.
type Region string

const (
	RegionNorthern Region = "Northern"
	RegionMidland  Region = "Midland"
	RegionCentral  Region = "Central"
	RegionSouthern Region = "Southern"
)

// Regions lists every recognised region.
var Regions = []Region{RegionNorthern, RegionMidland, RegionCentral, RegionSouthern}

// Valid reports whether r is a recognised region.
func (r Region) Valid() bool {
	for _, v := range Regions {
		if r == v {
			return true
		}
	}
	return false
}

// Stage is a member's position in the registration pipeline.
type Stage string

const (
	StageNotStarted           Stage = "not_started"
	StageVerified             Stage = "verified"
	StagePreferencesSubmitted Stage = "preferences_submitted"
	StageVenueAssigned        Stage = "venue_assigned"
	StageAttendanceConfirmed  Stage = "attendance_confirmed"
	StageAttendanceDeclined   Stage = "attendance_declined"
	StageCheckedIn            Stage = "checked_in"
)

// Rank orders stages along the pipeline. Confirmed and declined share a rank; they are
// alternative outcomes of the same step.
func (s Stage) Rank() int {
	switch s {
	case StageNotStarted:
		return 0
	case StageVerified:
		return 1
	case StagePreferencesSubmitted:
		return 2
	case StageVenueAssigned:
		return 3
	case StageAttendanceConfirmed, StageAttendanceDeclined:
		return 4
	case StageCheckedIn:
		return 5
	default:
		return -1
	}
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool { return s.Rank() >= 0 }

// Attendance is the member's tri-state attendance decision.
type Attendance string

const (
	AttendanceUndecided    Attendance = "undecided"
	AttendanceAttending    Attendance = "attending"
	AttendanceNotAttending Attendance = "not_attending"
)

// SpecialVoteState tracks a special vote application independently of the main stage.
type SpecialVoteState string

const (
	SpecialVoteNone      SpecialVoteState = "none"
	SpecialVoteRequested SpecialVoteState = "requested"
	SpecialVoteDecided   SpecialVoteState = "decided"
)

// Willingness answers "are you willing to attend a meeting in person".
type Willingness string

const (
	WillingnessYes Willingness = "yes"
	WillingnessNo  Willingness = "no"
)

// SpecialVoteInterest is only meaningful in the special vote region.
type SpecialVoteInterest string

const (
	SpecialVoteInterestYes    SpecialVoteInterest = "yes"
	SpecialVoteInterestNo     SpecialVoteInterest = "no"
	SpecialVoteInterestUnsure SpecialVoteInterest = "unsure"
)

// Preferences is what a member tells us about where and when they can attend.
type Preferences struct {
	PreferredVenues     []string            `json:"preferred_venues"`
	PreferredTimes      []string            `json:"preferred_times,omitempty"`
	Willingness         Willingness         `json:"attendance_willingness"`
	SpecialVoteInterest SpecialVoteInterest `json:"special_vote_interest,omitempty"`
	SubmittedAt         time.Time           `json:"submitted_at"`
}

// SpecialVoteApplication is a declined member's request to vote without attending.
type SpecialVoteApplication struct {
	Reason       string     `json:"reason"`
	Evidence     string     `json:"evidence"`
	EvidenceKey  string     `json:"evidence_key,omitempty"`
	ContactPhone string     `json:"contact_phone"`
	RequestedAt  time.Time  `json:"requested_at"`
	Approved     *bool      `json:"approved,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
}

// Member is one person's registration for the meeting.
type Member struct {
	ID               uuid.UUID `json:"id"`
	MembershipNumber string    `json:"membership_number"`
	FullName         string    `json:"full_name"`
	Email            *string   `json:"email,omitempty"`
	Mobile           *string   `json:"mobile,omitempty"`
	Region           Region    `json:"region"`

	AccessToken   string     `json:"-"`
	CodeHash      string     `json:"-"`
	CodeExpiresAt *time.Time `json:"-"`

	Stage              Stage                   `json:"stage"`
	Preferences        *Preferences            `json:"preferences,omitempty"`
	Attendance         Attendance              `json:"attendance"`
	AbsenceReason      string                  `json:"absence_reason,omitempty"`
	SpecialVote        SpecialVoteState        `json:"special_vote"`
	SpecialVoteRequest *SpecialVoteApplication `json:"special_vote_request,omitempty"`
	SessionID          *uuid.UUID              `json:"session_id,omitempty"`
	TicketCredential   *string                 `json:"-"`
	CheckedInAt        *time.Time              `json:"checked_in_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Willing reports whether the member's latest preferences say they will attend in person.
func (m *Member) Willing() bool {
	return m.Preferences != nil && m.Preferences.Willingness == WillingnessYes
}

// HasTicket reports whether a check-in credential is attached to the member.
func (m *Member) HasTicket() bool {
	return m.TicketCredential != nil && *m.TicketCredential != ""
}

// OnSpecialVotePathway reports whether a declined member has applied for a special vote.
func (m *Member) OnSpecialVotePathway() bool {
	return m.Stage == StageAttendanceDeclined && m.SpecialVote != SpecialVoteNone
}
