package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/union-bmm/backend/config"
	"github.com/union-bmm/backend/internal/auth"
)

func TestRun(t *testing.T) {
	cfg := config.JWTConfig{Secret: "s3cret", ExpireHours: 12}

	var out, errOut bytes.Buffer
	require.NoError(t, run([]string{"--id", "gate-7", "--name", "South door", "-r", "gate"}, cfg, &out, &errOut))
	claims, err := auth.NewJWTService("s3cret", 12).Validate(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "gate-7", claims.StaffID)
	assert.Equal(t, "South door", claims.Name)
	assert.Equal(t, auth.RoleGate, claims.Role)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing id", []string{"--role", "admin"}, "--id"},
		{"bad role", []string{"--id", "x", "--role", "scrutineer"}, "unknown role"},
		{"bad hours", []string{"--id", "x", "--hours", "0"}, "positive"},
		{"extra arg", []string{"--id", "x", "extra"}, "unexpected argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.args, cfg, &bytes.Buffer{}, &bytes.Buffer{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
