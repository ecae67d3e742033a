package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VERIFICATION_CODE_TTL", "")
	t.Setenv("SPECIAL_VOTE_REGION", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Southern", cfg.Registration.SpecialVoteRegion)
	assert.Equal(t, 15*time.Minute, cfg.Registration.CodeTTL)
	assert.Equal(t, "Pacific/Auckland", cfg.Registration.Timezone)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VERIFICATION_CODE_TTL", "5m")
	t.Setenv("VERIFY_ATTEMPT_LIMIT", "3")
	t.Setenv("LIMIT_WINDOW", "not-a-duration")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/bmm")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Registration.CodeTTL)
	assert.Equal(t, 3, cfg.Registration.VerifyAttempts)
	assert.Equal(t, time.Hour, cfg.Registration.LimitWindow)
	assert.Equal(t, "postgres://u:p@db:5432/bmm", cfg.Database.DSN())
}

func TestDSNFromParts(t *testing.T) {
	c := DatabaseConfig{User: "bmm", Password: "pw", Host: "localhost", Port: "5432", DBName: "bmm", SSLMode: "disable"}
	assert.Equal(t, "postgres://bmm:pw@localhost:5432/bmm?sslmode=disable", c.DSN())
}

func TestLocation(t *testing.T) {
	loc, err := RegistrationConfig{Timezone: "Pacific/Auckland"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "Pacific/Auckland", loc.String())

	loc, err = RegistrationConfig{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = RegistrationConfig{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}
