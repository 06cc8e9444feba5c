package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/minefleet/settlement-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, config.DriverSQLite, cfg.DBDriver)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, time.Hour, cfg.AnomalyDelay)
	assert.Equal(t, 2*time.Hour, cfg.FuelDelay)
	assert.Equal(t, 3*time.Hour, cfg.MonthlyDelay)
	assert.True(t, cfg.SchedulerEnabled)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("SCHEDULE_ANOMALY_DELAY", "90m")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("SETTLEMENT_CONCURRENCY", "not-a-number")

	cfg := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, config.DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 90*time.Minute, cfg.AnomalyDelay)
	assert.False(t, cfg.SchedulerEnabled)
	assert.Equal(t, 4, cfg.Concurrency)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	assert.NoError(t, os.WriteFile(path, []byte("SCHEDULE_DAILY_HOUR=3\nALERT_COOLDOWN_DAYS=2\n"), 0o600))
	t.Setenv("ALERT_COOLDOWN_DAYS", "5")
	// Registers cleanup so the value godotenv sets is restored afterwards.
	t.Setenv("SCHEDULE_DAILY_HOUR", "")
	os.Unsetenv("SCHEDULE_DAILY_HOUR")

	cfg := config.Load(path)

	assert.Equal(t, 3, cfg.DailyHour)
	assert.Equal(t, 5, cfg.AlertCooldownDays)
}
