package members

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/union-bmm/backend/internal/httpapi"
	"github.com/union-bmm/backend/internal/middleware"
	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/registration"
	"github.com/union-bmm/backend/pkg/response"
)

// MemberReader loads members by id for staff.
type MemberReader interface {
	GetMember(ctx context.Context, id uuid.UUID) (models.Member, error)
	GetSession(ctx context.Context, id uuid.UUID) (models.Session, error)
}

// EvidenceReader signs downloads of uploaded evidence for reviewers.
type EvidenceReader interface {
	PresignEvidenceDownload(ctx context.Context, key string) (string, error)
}

// AdminHandler serves the staff routes over members: lookup and special vote decisions.
type AdminHandler struct {
	store    MemberReader
	machine  *registration.StageMachine
	evidence EvidenceReader
	logger   *zap.Logger
}

// NewAdminHandler creates an admin members handler. evidence may be nil.
func NewAdminHandler(store MemberReader, machine *registration.StageMachine, evidence EvidenceReader, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{store: store, machine: machine, evidence: evidence, logger: logger}
}

// DecisionRequest is the body for POST /admin/members/:id/special-vote/decision.
type DecisionRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// Get handles GET /admin/members/:id. Evidence, when uploaded, comes back as a short
// lived download URL.
func (h *AdminHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	m, err := h.store.GetMember(ctx, id)
	if err != nil {
		httpapi.WriteError(c, h.logger, err)
		return
	}
	var session *models.Session
	if m.SessionID != nil {
		if s, err := h.store.GetSession(ctx, *m.SessionID); err == nil {
			session = &s
		}
	}
	out := gin.H{"member": httpapi.NewMemberView(m, session)}
	if h.evidence != nil && m.SpecialVoteRequest != nil && m.SpecialVoteRequest.EvidenceKey != "" {
		url, err := h.evidence.PresignEvidenceDownload(ctx, m.SpecialVoteRequest.EvidenceKey)
		if err != nil {
			h.logger.Warn("presign evidence download failed", zap.Error(err), zap.String("member_id", id.String()))
		} else {
			out["evidence_url"] = url
		}
	}
	response.OK(c, out)
}

// DecideSpecialVote handles POST /admin/members/:id/special-vote/decision.
func (h *AdminHandler) DecideSpecialVote(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.machine.DecideSpecialVote(c.Request.Context(), id, *req.Approved)
	if err != nil {
		httpapi.WriteError(c, h.logger, err)
		return
	}
	h.logger.Info("special vote decision recorded", zap.String("member_id", id.String()),
		zap.String("staff_id", c.GetString(middleware.ContextStaffID)), zap.Bool("approved", *req.Approved))
	response.OK(c, httpapi.NewMemberView(m, nil))
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpapi.BadRequest(c, "invalid member id")
		return uuid.Nil, false
	}
	return id, true
}
