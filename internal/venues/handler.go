package venues

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/union-bmm/backend/internal/httpapi"
	"github.com/union-bmm/backend/internal/middleware"
	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/registration"
	"github.com/union-bmm/backend/pkg/response"
)

const maxBatch = 500

// Sessions is the read side of the session directory.
type Sessions interface {
	GetSession(ctx context.Context, id uuid.UUID) (models.Session, error)
	FindSession(ctx context.Context, venueName string, startsAt time.Time) (models.Session, error)
	ListSessions(ctx context.Context, region models.Region) ([]models.Session, error)
}

// Handler serves the admin session directory and venue assignment routes.
type Handler struct {
	sessions Sessions
	machine  *registration.StageMachine
	loc      *time.Location
	logger   *zap.Logger
}

// NewHandler creates a venues handler. loc interprets dates and times supplied by admins.
func NewHandler(sessions Sessions, machine *registration.StageMachine, loc *time.Location, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{sessions: sessions, machine: machine, loc: loc, logger: logger}
}

// SessionView is a session with its remaining seats.
type SessionView struct {
	models.Session
	Remaining int `json:"remaining"`
}

// AssignRequest is the body for POST /admin/assignments. The session is named either by
// id or by venue plus local date and time. Set member_id for one member or member_ids
// for a batch.
type AssignRequest struct {
	MemberID  *uuid.UUID  `json:"member_id"`
	MemberIDs []uuid.UUID `json:"member_ids"`
	SessionID *uuid.UUID  `json:"session_id"`
	Venue     string      `json:"venue"`
	Date      string      `json:"date"`
	Time      string      `json:"time"`
}

// AssignmentOutcome is one entry of a batch response.
type AssignmentOutcome struct {
	MemberID uuid.UUID    `json:"member_id"`
	Stage    models.Stage `json:"stage,omitempty"`
	Error    string       `json:"error,omitempty"`
	Code     string       `json:"code,omitempty"`
}

// ListSessions handles GET /admin/sessions?region=.
func (h *Handler) ListSessions(c *gin.Context) {
	region := models.Region(c.Query("region"))
	if region != "" && !region.Valid() {
		httpapi.BadRequest(c, fmt.Sprintf("unknown region %q", region))
		return
	}
	list, err := h.sessions.ListSessions(c.Request.Context(), region)
	if err != nil {
		httpapi.WriteError(c, h.logger, err)
		return
	}
	out := make([]SessionView, 0, len(list))
	for _, s := range list {
		out = append(out, SessionView{Session: s, Remaining: s.Remaining()})
	}
	response.OK(c, out)
}

// Assign handles POST /admin/assignments.
func (h *Handler) Assign(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if (req.MemberID == nil) == (len(req.MemberIDs) == 0) {
		httpapi.BadRequest(c, "set exactly one of member_id or member_ids")
		return
	}
	if len(req.MemberIDs) > maxBatch {
		httpapi.BadRequest(c, fmt.Sprintf("at most %d members per batch", maxBatch))
		return
	}
	session, err := h.resolveSession(c.Request.Context(), req)
	if err != nil {
		httpapi.WriteError(c, h.logger, err)
		return
	}

	if req.MemberID != nil {
		m, err := h.machine.AssignVenue(c.Request.Context(), *req.MemberID, session.ID)
		if err != nil {
			httpapi.WriteError(c, h.logger, err)
			return
		}
		session, _ = h.sessions.GetSession(c.Request.Context(), session.ID)
		response.OK(c, httpapi.NewMemberView(m, &session))
		return
	}

	results := h.machine.AssignVenues(c.Request.Context(), session.ID, req.MemberIDs)
	out := make([]AssignmentOutcome, 0, len(results))
	assigned := 0
	for _, r := range results {
		o := AssignmentOutcome{MemberID: r.MemberID}
		if r.Err != nil {
			_, o.Code = httpapi.Classify(r.Err)
			o.Error = r.Err.Error()
		} else {
			o.Stage = r.Member.Stage
			assigned++
		}
		out = append(out, o)
	}
	h.logger.Info("batch assignment", zap.String("session_id", session.ID.String()),
		zap.String("staff_id", c.GetString(middleware.ContextStaffID)),
		zap.Int("requested", len(req.MemberIDs)), zap.Int("assigned", assigned))
	response.OK(c, gin.H{"session_id": session.ID, "assigned": assigned, "results": out})
}

func (h *Handler) resolveSession(ctx context.Context, req AssignRequest) (models.Session, error) {
	if req.SessionID != nil {
		return h.sessions.GetSession(ctx, *req.SessionID)
	}
	venue := strings.TrimSpace(req.Venue)
	if venue == "" || req.Date == "" || req.Time == "" {
		return models.Session{}, fmt.Errorf("%w: session_id or venue, date and time are required", registration.ErrValidation)
	}
	start, err := ParseStart(req.Date, req.Time, h.loc)
	if err != nil {
		return models.Session{}, fmt.Errorf("%w: %v", registration.ErrValidation, err)
	}
	return h.sessions.FindSession(ctx, venue, start)
}
