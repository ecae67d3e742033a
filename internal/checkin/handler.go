package checkin

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/union-bmm/backend/internal/httpapi"
	"github.com/union-bmm/backend/internal/middleware"
	"github.com/union-bmm/backend/internal/realtime"
	"github.com/union-bmm/backend/internal/registration"
	"github.com/union-bmm/backend/pkg/response"
)

// Processor consumes ticket credentials.
type Processor interface {
	CheckIn(ctx context.Context, credential string) (registration.CheckInResult, error)
}

// Broadcaster pushes gate events to the dashboards watching a session.
type Broadcaster interface {
	PublishToSessionOnly(sessionID uuid.UUID, event string, payload interface{})
}

// Handler serves the gate scanner route.
type Handler struct {
	processor Processor
	feed      Broadcaster
	logger    *zap.Logger
}

// NewHandler creates a check-in handler. feed may be nil.
func NewHandler(processor Processor, feed Broadcaster, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{processor: processor, feed: feed, logger: logger}
}

// Request is the body for POST /checkin.
type Request struct {
	Credential string `json:"credential" binding:"required"`
}

// Event is what gate dashboards receive for each admitted member.
type Event struct {
	MemberID         uuid.UUID `json:"member_id"`
	MembershipNumber string    `json:"membership_number"`
	FullName         string    `json:"full_name"`
	CheckedInAt      time.Time `json:"checked_in_at"`
	Gate             string    `json:"gate,omitempty"`
	Reserved         int       `json:"reserved"`
}

// CheckIn handles POST /checkin.
func (h *Handler) CheckIn(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.processor.CheckIn(c.Request.Context(), req.Credential)
	if err != nil {
		httpapi.WriteError(c, h.logger, err)
		return
	}
	if h.feed != nil {
		h.feed.PublishToSessionOnly(res.Session.ID, realtime.EventCheckedIn, Event{
			MemberID:         res.MemberID,
			MembershipNumber: res.MembershipNumber,
			FullName:         res.FullName,
			CheckedInAt:      res.CheckedInAt,
			Gate:             c.GetString(middleware.ContextStaffName),
			Reserved:         res.Session.Reserved,
		})
	}
	response.OK(c, res)
}
