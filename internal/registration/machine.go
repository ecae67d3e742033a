package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/union-bmm/backend/internal/models"
)

const (
	maxPreferredVenues = 3
	assignConcurrency  = 4
)

// StageMachine moves members through the registration stages. Every operation locks the
// member row, checks the stage guard, and writes back in one transaction.
type StageMachine struct {
	deps        Deps
	allocator   *Allocator
	tickets     *TicketIssuer
	eligibility Eligibility
}

// NewStageMachine wires the state machine to its collaborators.
func NewStageMachine(deps Deps, allocator *Allocator, tickets *TicketIssuer, eligibility Eligibility) *StageMachine {
	return &StageMachine{
		deps:        deps.withDefaults(),
		allocator:   allocator,
		tickets:     tickets,
		eligibility: eligibility,
	}
}

// PreferencesInput is what a member submits on the preferences form.
type PreferencesInput struct {
	PreferredVenues     []string
	PreferredTimes      []string
	Willingness         models.Willingness
	SpecialVoteInterest models.SpecialVoteInterest
}

// SubmitPreferences records the member's venue preferences. Resubmitting before a venue
// is assigned overwrites the previous answer.
func (s *StageMachine) SubmitPreferences(ctx context.Context, memberID uuid.UUID, in PreferencesInput) (models.Member, error) {
	prefs, err := normalizePreferences(in)
	if err != nil {
		return models.Member{}, err
	}

	var out models.Member
	err = s.deps.Store.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.deps.Store.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		if err := submitPreferences.check(m); err != nil {
			return err
		}
		for _, name := range prefs.PreferredVenues {
			venue, err := s.deps.Store.GetVenue(ctx, name)
			if errors.Is(err, ErrNotFound) {
				return invalidSelection("unknown venue %q", name)
			}
			if err != nil {
				return err
			}
			if venue.Region != m.Region {
				return invalidSelection("venue %q is outside region %s", name, m.Region)
			}
		}
		if !s.eligibility.OffersSpecialVotes(m.Region) &&
			prefs.SpecialVoteInterest != "" && prefs.SpecialVoteInterest != models.SpecialVoteInterestNo {
			return invalidSelection("special votes are not offered in region %s", m.Region)
		}

		now := s.deps.Clock.Now()
		prefs.SubmittedAt = now
		m.Preferences = &prefs
		m.Stage = models.StagePreferencesSubmitted
		m.UpdatedAt = now
		if err := s.deps.Store.UpdateMember(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return models.Member{}, err
	}
	s.deps.Logger.Info("preferences submitted", memberKey(memberID), zap.Strings("venues", prefs.PreferredVenues))
	return out, nil
}

// AssignVenue books the member into a session. Re-assignment releases the previous seat in
// the same transaction; a confirmed member gets a fresh ticket for the new session.
// A full session fails with ErrCapacityExceeded and no fallback is attempted.
func (s *StageMachine) AssignVenue(ctx context.Context, memberID, sessionID uuid.UUID) (models.Member, error) {
	var (
		out      models.Member
		reissued *models.Ticket
	)
	err := s.deps.Store.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.deps.Store.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		if err := assignVenue.check(m); err != nil {
			return err
		}
		if !m.Willing() {
			return invalidSelection("member %s has not declared willingness to attend", m.MembershipNumber)
		}
		session, err := s.deps.Store.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Region != m.Region {
			return invalidSelection("session at %q is outside region %s", session.VenueName, m.Region)
		}
		if m.SessionID != nil && *m.SessionID == sessionID {
			out = m
			return nil
		}

		if err := s.allocator.Move(ctx, m.SessionID, sessionID); err != nil {
			return err
		}
		m.SessionID = &sessionID

		if m.Stage == models.StageAttendanceConfirmed {
			if err := s.tickets.void(ctx, &m); err != nil {
				return err
			}
			t, _, err := s.tickets.issue(ctx, &m)
			if err != nil {
				return err
			}
			reissued = &t
		} else {
			m.Stage = models.StageVenueAssigned
		}

		m.UpdatedAt = s.deps.Clock.Now()
		if err := s.deps.Store.UpdateMember(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return models.Member{}, err
	}
	if reissued != nil {
		s.tickets.announce(ctx, out, *reissued, true)
	}
	s.deps.Logger.Info("venue assigned", memberKey(memberID), zap.String("session_id", sessionID.String()))
	return out, nil
}

// AssignmentResult is the outcome of assigning one member in a batch.
type AssignmentResult struct {
	MemberID uuid.UUID
	Member   *models.Member
	Err      error
}

// AssignVenues assigns every member to the session, each in its own transaction. One
// member failing (for example on capacity) does not affect the others.
func (s *StageMachine) AssignVenues(ctx context.Context, sessionID uuid.UUID, memberIDs []uuid.UUID) []AssignmentResult {
	results := make([]AssignmentResult, len(memberIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(assignConcurrency)
	for i, id := range memberIDs {
		i, id := i, id
		g.Go(func() error {
			m, err := s.AssignVenue(gctx, id, sessionID)
			results[i] = AssignmentResult{MemberID: id, Err: err}
			if err == nil {
				results[i].Member = &m
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AttendanceResult carries the member and, when attending, their live ticket.
type AttendanceResult struct {
	Member models.Member
	Ticket *models.Ticket
}

// ConfirmAttendance records the member's attendance decision. Attending issues (or returns
// the existing) ticket; declining releases the reserved seat.
func (s *StageMachine) ConfirmAttendance(ctx context.Context, memberID uuid.UUID, attending bool, absenceReason string) (AttendanceResult, error) {
	absenceReason = strings.TrimSpace(absenceReason)
	if !attending && absenceReason == "" {
		return AttendanceResult{}, validation("absence reason is required when not attending")
	}

	var (
		res     AttendanceResult
		created bool
	)
	err := s.deps.Store.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.deps.Store.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		now := s.deps.Clock.Now()

		if attending {
			if err := confirmAttendance.check(m); err != nil {
				return err
			}
			m.Stage = models.StageAttendanceConfirmed
			m.Attendance = models.AttendanceAttending
			m.AbsenceReason = ""
			t, isNew, err := s.tickets.issue(ctx, &m)
			if err != nil {
				return err
			}
			res.Ticket = &t
			created = isNew
		} else {
			// Members who said they will not attend never get a session, so they may
			// decline straight from preferences_submitted.
			shortcut := m.Stage == models.StagePreferencesSubmitted && !m.Willing()
			if !shortcut {
				if err := declineAttendance.check(m); err != nil {
					return err
				}
			}
			if m.SessionID != nil {
				if err := s.allocator.Release(ctx, *m.SessionID); err != nil {
					return err
				}
				m.SessionID = nil
			}
			m.Stage = models.StageAttendanceDeclined
			m.Attendance = models.AttendanceNotAttending
			m.AbsenceReason = absenceReason
		}

		m.UpdatedAt = now
		if err := s.deps.Store.UpdateMember(ctx, m); err != nil {
			return err
		}
		res.Member = m
		return nil
	})
	if err != nil {
		return AttendanceResult{}, err
	}
	if created {
		s.tickets.announce(ctx, res.Member, *res.Ticket, false)
	}
	s.deps.Logger.Info("attendance recorded", memberKey(memberID), zap.Bool("attending", attending))
	return res, nil
}

// SpecialVoteInput is a declined member's special vote application.
type SpecialVoteInput struct {
	Reason       string
	Evidence     string
	EvidenceKey  string
	ContactPhone string
}

// RequestSpecialVote files a special vote application. The main stage does not change.
func (s *StageMachine) RequestSpecialVote(ctx context.Context, memberID uuid.UUID, in SpecialVoteInput) (models.Member, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	in.Evidence = strings.TrimSpace(in.Evidence)
	in.ContactPhone = strings.TrimSpace(in.ContactPhone)

	var out models.Member
	err := s.deps.Store.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.deps.Store.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		if !s.eligibility.IsEligible(m) {
			return ErrNotEligible
		}
		if m.SpecialVote == models.SpecialVoteDecided {
			return fmt.Errorf("%w: special vote already decided", ErrIllegalTransition)
		}
		switch {
		case in.Reason == "":
			return validation("eligibility reason is required")
		case in.Evidence == "" && in.EvidenceKey == "":
			return validation("evidence is required")
		case in.ContactPhone == "":
			return validation("contact phone is required")
		}

		now := s.deps.Clock.Now()
		m.SpecialVote = models.SpecialVoteRequested
		m.SpecialVoteRequest = &models.SpecialVoteApplication{
			Reason:       in.Reason,
			Evidence:     in.Evidence,
			EvidenceKey:  in.EvidenceKey,
			ContactPhone: in.ContactPhone,
			RequestedAt:  now,
		}
		m.UpdatedAt = now
		if err := s.deps.Store.UpdateMember(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return models.Member{}, err
	}
	s.deps.Logger.Info("special vote requested", memberKey(memberID))
	return out, nil
}

// DecideSpecialVote records the returning officer's decision on a requested special vote.
// A decided application is terminal.
func (s *StageMachine) DecideSpecialVote(ctx context.Context, memberID uuid.UUID, approved bool) (models.Member, error) {
	var out models.Member
	err := s.deps.Store.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.deps.Store.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		if m.SpecialVote != models.SpecialVoteRequested || m.SpecialVoteRequest == nil {
			return fmt.Errorf("%w: no special vote request pending", ErrIllegalTransition)
		}
		now := s.deps.Clock.Now()
		m.SpecialVote = models.SpecialVoteDecided
		m.SpecialVoteRequest.Approved = &approved
		m.SpecialVoteRequest.DecidedAt = &now
		m.UpdatedAt = now
		if err := s.deps.Store.UpdateMember(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return models.Member{}, err
	}
	s.deps.Logger.Info("special vote decided", memberKey(memberID), zap.Bool("approved", approved))
	return out, nil
}

func normalizePreferences(in PreferencesInput) (models.Preferences, error) {
	venues := dedupe(in.PreferredVenues)
	if len(venues) == 0 {
		return models.Preferences{}, invalidSelection("at least one preferred venue is required")
	}
	if len(venues) > maxPreferredVenues {
		return models.Preferences{}, invalidSelection("at most %d preferred venues are allowed", maxPreferredVenues)
	}
	switch in.Willingness {
	case models.WillingnessYes, models.WillingnessNo:
	default:
		return models.Preferences{}, invalidSelection("attendance willingness must be yes or no")
	}
	switch in.SpecialVoteInterest {
	case "", models.SpecialVoteInterestYes, models.SpecialVoteInterestNo, models.SpecialVoteInterestUnsure:
	default:
		return models.Preferences{}, invalidSelection("unknown special vote interest %q", in.SpecialVoteInterest)
	}
	return models.Preferences{
		PreferredVenues:     venues,
		PreferredTimes:      dedupe(in.PreferredTimes),
		Willingness:         in.Willingness,
		SpecialVoteInterest: in.SpecialVoteInterest,
	}, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
