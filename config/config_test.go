package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
)

func TestLoad_Defaults(t *testing.T) {
	// GIVEN: Only the secret is set
	t.Setenv("JWT_SECRET", "s3cret")

	// WHEN: Loading with no .env file on disk
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))

	// THEN: Defaults apply
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "10-M", cfg.SubmitRateLimit)
	assert.Equal(t, 24*time.Hour, cfg.ReminderInterval)

	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Equal(t, leave.DefaultRules(), rules)
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	// GIVEN: A .env file and an environment variable for the same key
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"JWT_SECRET=from-file\nKAFKA_BROKERS=k1:9092, k2:9092\nWEEK_MODE=seven_day_operational\nMINIMUM_STAY=balance_aware\nTARGET_YEAR=2026\n"), 0o600))
	t.Setenv("JWT_SECRET", "from-env")
	for _, key := range []string{"KAFKA_BROKERS", "WEEK_MODE", "MINIMUM_STAY", "TARGET_YEAR"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	// WHEN: Loading
	cfg, err := Load(envFile)

	// THEN: The environment wins, the file fills the rest
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)

	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Equal(t, leave.SevenDayOperational, rules.WeekMode)
	assert.Equal(t, leave.MinimumStayBalanceAware, rules.MinimumStay)
	assert.Equal(t, 2026, rules.TargetYear)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no secret", map[string]string{"JWT_SECRET": ""}},
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "oracle"}},
		{"postgres without url", map[string]string{"DATABASE_DRIVER": "postgres"}},
		{"bad week mode", map[string]string{"WEEK_MODE": "four_day_week"}},
		{"reminders without interval", map[string]string{"REMINDERS_ENABLED": "true", "REMINDER_INTERVAL": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "s3cret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
