package registration

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/pkg/utils"
)

const codeDigits = 6

// Verifier resolves member access tokens and checks one-time verification codes.
type Verifier struct {
	deps   Deps
	policy Policy
}

// NewVerifier creates a token verifier.
func NewVerifier(deps Deps, policy Policy) *Verifier {
	return &Verifier{deps: deps.withDefaults(), policy: policy.withDefaults()}
}

// Resolve returns the member bound to an access token.
func (v *Verifier) Resolve(ctx context.Context, token string) (models.Member, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Member{}, ErrNotFound
	}
	return v.deps.Store.GetMemberByToken(ctx, token)
}

// IssueCode stores a fresh verification code for the member and emits CodeIssued.
// Any previously active code stops working.
func (v *Verifier) IssueCode(ctx context.Context, token string) (time.Time, error) {
	m, err := v.Resolve(ctx, token)
	if err != nil {
		return time.Time{}, err
	}
	if m.Email == nil && m.Mobile == nil {
		return time.Time{}, validation("member %s has no contact channel", m.MembershipNumber)
	}
	if err := v.allow(ctx, "code:"+m.ID.String(), v.policy.CodeRequestLimit); err != nil {
		return time.Time{}, err
	}

	code, err := generateCode()
	if err != nil {
		return time.Time{}, fmt.Errorf("generate code: %w", err)
	}
	hash, err := utils.HashSecret(code)
	if err != nil {
		return time.Time{}, fmt.Errorf("hash code: %w", err)
	}

	var evt CodeIssued
	err = v.deps.Store.WithTx(ctx, func(ctx context.Context) error {
		locked, err := v.deps.Store.LockMember(ctx, m.ID)
		if err != nil {
			return err
		}
		now := v.deps.Clock.Now()
		expires := now.Add(v.policy.CodeTTL)
		locked.CodeHash = hash
		locked.CodeExpiresAt = &expires
		locked.UpdatedAt = now
		if err := v.deps.Store.UpdateMember(ctx, locked); err != nil {
			return err
		}
		evt = CodeIssued{
			MemberID:         locked.ID,
			MembershipNumber: locked.MembershipNumber,
			FullName:         locked.FullName,
			Email:            locked.Email,
			Mobile:           locked.Mobile,
			Code:             code,
			ExpiresAt:        expires,
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	if err := v.deps.Notifier.CodeIssued(ctx, evt); err != nil {
		v.deps.Logger.Error("notify code issued failed", zap.Error(err), memberKey(m.ID))
	}
	v.deps.Logger.Info("verification code issued", memberKey(m.ID))
	return evt.ExpiresAt, nil
}

// Verify checks the membership number and the active code for the token's member.
// On success the code is consumed and a not_started member becomes verified, in one
// transaction. A failed attempt leaves the member untouched.
func (v *Verifier) Verify(ctx context.Context, token, membershipNumber, code string) (models.Member, error) {
	m, err := v.Resolve(ctx, token)
	if err != nil {
		return models.Member{}, err
	}
	if err := v.allow(ctx, "verify:"+m.ID.String(), v.policy.VerifyAttempts); err != nil {
		return models.Member{}, err
	}
	code = strings.TrimSpace(code)
	if !wellFormedCode(code) {
		return models.Member{}, ErrInvalidCredentials
	}

	var out models.Member
	err = v.deps.Store.WithTx(ctx, func(ctx context.Context) error {
		locked, err := v.deps.Store.LockMember(ctx, m.ID)
		if err != nil {
			return err
		}
		if !sameMembershipNumber(locked.MembershipNumber, membershipNumber) || locked.CodeHash == "" {
			return ErrInvalidCredentials
		}
		now := v.deps.Clock.Now()
		if locked.CodeExpiresAt != nil && !now.Before(*locked.CodeExpiresAt) {
			return ErrCodeExpired
		}
		if !utils.CheckSecret(code, locked.CodeHash) {
			return ErrInvalidCredentials
		}

		locked.CodeHash = ""
		locked.CodeExpiresAt = nil
		if locked.Stage == models.StageNotStarted {
			locked.Stage = models.StageVerified
		}
		locked.UpdatedAt = now
		if err := v.deps.Store.UpdateMember(ctx, locked); err != nil {
			return err
		}
		out = locked
		return nil
	})
	if err != nil {
		return models.Member{}, err
	}
	v.deps.Logger.Info("member verified", memberKey(out.ID), zap.String("stage", string(out.Stage)))
	return out, nil
}

func (v *Verifier) allow(ctx context.Context, key string, limit int) error {
	if v.deps.Limiter == nil || limit <= 0 {
		return nil
	}
	ok, err := v.deps.Limiter.Allow(ctx, key, limit, v.policy.LimitWindow)
	if err != nil {
		// Limiter outages fail open.
		v.deps.Logger.Warn("rate limiter unavailable", zap.Error(err), zap.String("key", key))
		return nil
	}
	if !ok {
		return ErrTooManyAttempts
	}
	return nil
}

func sameMembershipNumber(stored, supplied string) bool {
	supplied = strings.TrimSpace(supplied)
	return supplied != "" && strings.EqualFold(stored, supplied)
}

func wellFormedCode(code string) bool {
	if len(code) != codeDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// memberKey is the log field for a member id.
func memberKey(id uuid.UUID) zap.Field {
	return zap.String("member_id", id.String())
}
