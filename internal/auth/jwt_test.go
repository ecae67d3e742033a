package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 1)

	token, err := svc.Generate("staff-7", "Hemi", RoleGate)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-7", claims.StaffID)
	assert.Equal(t, RoleGate, claims.Role)
}

func TestJWTRejects(t *testing.T) {
	svc := NewJWTService("secret", 1)

	_, err := svc.Generate("staff-7", "Hemi", "superuser")
	assert.ErrorIs(t, err, ErrUnknownRole)

	other, err := NewJWTService("other", 1).Generate("staff-7", "Hemi", RoleAdmin)
	require.NoError(t, err)
	_, err = svc.Validate(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewJWTService("secret", -1).Generate("staff-7", "Hemi", RoleAdmin)
	require.NoError(t, err)
	_, err = svc.Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
