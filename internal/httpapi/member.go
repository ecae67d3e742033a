package httpapi

import "github.com/union-bmm/backend/internal/models"

// MemberView is a member as returned over HTTP, with the derived states spelled out.
type MemberView struct {
	models.Member
	TicketIssued       bool            `json:"ticket_issued"`
	SpecialVotePathway bool            `json:"special_vote_pathway"`
	TicketCredential   string          `json:"ticket_credential,omitempty"`
	Session            *models.Session `json:"session,omitempty"`
}

// NewMemberView builds the view. session may be nil.
func NewMemberView(m models.Member, session *models.Session) MemberView {
	v := MemberView{
		Member:             m,
		TicketIssued:       m.Stage == models.StageAttendanceConfirmed && m.HasTicket(),
		SpecialVotePathway: m.OnSpecialVotePathway(),
		Session:            session,
	}
	if m.HasTicket() && m.Stage == models.StageAttendanceConfirmed {
		v.TicketCredential = *m.TicketCredential
	}
	return v
}
