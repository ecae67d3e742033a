package members

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/union-bmm/backend/internal/httpapi"
	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/registration"
	"github.com/union-bmm/backend/pkg/response"
	"github.com/union-bmm/backend/pkg/storage"
)

// SessionLookup loads the session a member is booked into.
type SessionLookup interface {
	GetSession(ctx context.Context, id uuid.UUID) (models.Session, error)
}

// EvidenceStore issues upload URLs for special vote evidence and confirms uploads landed.
type EvidenceStore interface {
	PresignEvidenceUpload(ctx context.Context, key, contentType string) (string, error)
	EvidenceExists(ctx context.Context, key string) (bool, error)
	PresignExpire() time.Duration
}

// Handler serves the member facing routes. The access token in the path is the only
// credential; the code check gates everything after verification through the stage guards.
type Handler struct {
	verifier    *registration.Verifier
	machine     *registration.StageMachine
	sessions    SessionLookup
	eligibility registration.Eligibility
	evidence    EvidenceStore
	logger      *zap.Logger
}

// NewHandler creates a members handler. evidence may be nil when object storage is not configured.
func NewHandler(verifier *registration.Verifier, machine *registration.StageMachine, sessions SessionLookup, eligibility registration.Eligibility, evidence EvidenceStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		verifier:    verifier,
		machine:     machine,
		sessions:    sessions,
		eligibility: eligibility,
		evidence:    evidence,
		logger:      logger,
	}
}

// Register mounts the member routes on r.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/members/:token")
	g.GET("", h.Get)
	g.POST("/code", h.RequestCode)
	g.POST("/verify", h.Verify)
	g.PUT("/preferences", h.SubmitPreferences)
	g.POST("/attendance", h.ConfirmAttendance)
	g.POST("/special-vote/evidence", h.EvidenceUploadURL)
	g.POST("/special-vote", h.RequestSpecialVote)
}

// VerifyRequest is the body for POST /members/:token/verify.
type VerifyRequest struct {
	MembershipNumber string `json:"membership_number" binding:"required"`
	Code             string `json:"code" binding:"required"`
}

// PreferencesRequest is the body for PUT /members/:token/preferences.
type PreferencesRequest struct {
	PreferredVenues     []string `json:"preferred_venues"`
	PreferredTimes      []string `json:"preferred_times"`
	Willingness         string   `json:"attendance_willingness"`
	SpecialVoteInterest string   `json:"special_vote_interest"`
}

// AttendanceRequest is the body for POST /members/:token/attendance.
type AttendanceRequest struct {
	Attending     *bool  `json:"attending" binding:"required"`
	AbsenceReason string `json:"absence_reason"`
}

// EvidenceRequest is the body for POST /members/:token/special-vote/evidence.
type EvidenceRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
}

// SpecialVoteRequest is the body for POST /members/:token/special-vote.
type SpecialVoteRequest struct {
	Reason       string `json:"reason"`
	Evidence     string `json:"evidence"`
	EvidenceKey  string `json:"evidence_key"`
	ContactPhone string `json:"contact_phone"`
}

// Get handles GET /members/:token.
func (h *Handler) Get(c *gin.Context) {
	m, ok := h.resolve(c)
	if !ok {
		return
	}
	response.OK(c, h.view(c.Request.Context(), m))
}

// RequestCode handles POST /members/:token/code. The code itself only travels through
// the notification channel.
func (h *Handler) RequestCode(c *gin.Context) {
	expiresAt, err := h.verifier.IssueCode(c.Request.Context(), c.Param("token"))
	if err != nil {
		httpapi.WriteError(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"expires_at": expiresAt})
}

// Verify handles POST /members/:token/verify.
func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.verifier.Verify(c.Request.Context(), c.Param("token"), req.MembershipNumber, req.Code)
	if err != nil {
		httpapi.WriteError(c, h.logger, err)
		return
	}
	response.OK(c, h.view(c.Request.Context(), m))
}

// SubmitPreferences handles PUT /members/:token/preferences.
func (h *Handler) SubmitPreferences(c *gin.Context) {
	m, ok := h.resolve(c)
	if !ok {
		return
	}
	var req PreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	out, err := h.machine.SubmitPreferences(c.Request.Context(), m.ID, registration.PreferencesInput{
		PreferredVenues:     req.PreferredVenues,
		PreferredTimes:      req.PreferredTimes,
		Willingness:         models.Willingness(strings.ToLower(strings.TrimSpace(req.Willingness))),
		SpecialVoteInterest: models.SpecialVoteInterest(strings.ToLower(strings.TrimSpace(req.SpecialVoteInterest))),
	})
	if err != nil {
		httpapi.WriteError(c, h.logger, err)
		return
	}
	response.OK(c, h.view(c.Request.Context(), out))
}

// ConfirmAttendance handles POST /members/:token/attendance.
func (h *Handler) ConfirmAttendance(c *gin.Context) {
	m, ok := h.resolve(c)
	if !ok {
		return
	}
	var req AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.machine.ConfirmAttendance(c.Request.Context(), m.ID, *req.Attending, req.AbsenceReason)
	if err != nil {
		httpapi.WriteError(c, h.logger, err)
		return
	}
	response.OK(c, h.view(c.Request.Context(), res.Member))
}

// EvidenceUploadURL handles POST /members/:token/special-vote/evidence. It returns a
// pre-signed PUT URL under the member's own evidence prefix.
func (h *Handler) EvidenceUploadURL(c *gin.Context) {
	m, ok := h.resolve(c)
	if !ok {
		return
	}
	if h.evidence == nil {
		response.ServiceUnavailable(c, "evidence uploads are not configured")
		return
	}
	if !h.eligibility.IsEligible(m) {
		httpapi.WriteError(c, h.logger, registration.ErrNotEligible)
		return
	}
	var req EvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !storage.ValidateEvidenceType(req.ContentType, req.Filename) {
		httpapi.BadRequest(c, "evidence must be a PDF or an image")
		return
	}
	contentType := strings.ToLower(req.ContentType)
	if _, ok := storage.AllowedEvidenceTypes[contentType]; !ok {
		contentType = storage.ContentTypeForFilename(req.Filename)
	}
	key := storage.EvidenceKey(m.ID.String(), req.Filename)
	url, err := h.evidence.PresignEvidenceUpload(c.Request.Context(), key, contentType)
	if err != nil {
		h.logger.Error("presign evidence upload failed", zap.Error(err), zap.String("member_id", m.ID.String()))
		response.Internal(c, "failed to generate upload url")
		return
	}
	response.OK(c, gin.H{
		"upload_url":   url,
		"evidence_key": key,
		"content_type": contentType,
		"expires_in":   int(h.evidence.PresignExpire().Seconds()),
	})
}

// RequestSpecialVote handles POST /members/:token/special-vote.
func (h *Handler) RequestSpecialVote(c *gin.Context) {
	m, ok := h.resolve(c)
	if !ok {
		return
	}
	var req SpecialVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	req.EvidenceKey = strings.TrimSpace(req.EvidenceKey)
	if req.EvidenceKey != "" {
		if err := h.checkEvidence(c.Request.Context(), m.ID, req.EvidenceKey); err != nil {
			httpapi.WriteError(c, h.logger, err)
			return
		}
	}
	out, err := h.machine.RequestSpecialVote(c.Request.Context(), m.ID, registration.SpecialVoteInput{
		Reason:       req.Reason,
		Evidence:     req.Evidence,
		EvidenceKey:  req.EvidenceKey,
		ContactPhone: req.ContactPhone,
	})
	if err != nil {
		httpapi.WriteError(c, h.logger, err)
		return
	}
	response.OK(c, h.view(c.Request.Context(), out))
}

func (h *Handler) checkEvidence(ctx context.Context, memberID uuid.UUID, key string) error {
	if !storage.OwnsEvidenceKey(memberID.String(), key) {
		return wrapValidation("evidence key does not belong to this member")
	}
	if h.evidence == nil {
		return nil
	}
	ok, err := h.evidence.EvidenceExists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return wrapValidation("evidence has not been uploaded")
	}
	return nil
}

func wrapValidation(msg string) error {
	return fmt.Errorf("%w: %s", registration.ErrValidation, msg)
}

func (h *Handler) resolve(c *gin.Context) (models.Member, bool) {
	m, err := h.verifier.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		httpapi.WriteError(c, h.logger, err)
		return models.Member{}, false
	}
	return m, true
}

func (h *Handler) view(ctx context.Context, m models.Member) httpapi.MemberView {
	if m.SessionID == nil || h.sessions == nil {
		return httpapi.NewMemberView(m, nil)
	}
	s, err := h.sessions.GetSession(ctx, *m.SessionID)
	if err != nil {
		h.logger.Warn("load member session failed", zap.Error(err), zap.String("member_id", m.ID.String()))
		return httpapi.NewMemberView(m, nil)
	}
	return httpapi.NewMemberView(m, &s)
}
