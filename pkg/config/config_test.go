package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 20.0, cfg.Scheduler.CapacityCriticalPercent)
	assert.Equal(t, 200, cfg.Scheduler.MaxSwapAttempts)
	assert.Equal(t, 12, cfg.Scheduler.GapRepairIterations)
	assert.Equal(t, 25, cfg.Scheduler.TeacherWeeklyLimit)
	assert.Equal(t, 4, cfg.Scheduler.MorningCutoff)
	assert.Equal(t, 4, cfg.Scheduler.DetectConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.Cache.SummaryTTL)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SCHEDULER_CAPACITY_CRITICAL_PCT", "35")
	t.Setenv("SCHEDULER_RULES_FILE", " rules.yaml ")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("SUMMARY_CACHE_TTL", "not-a-duration")
	t.Setenv("ENABLE_CACHE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 35.0, cfg.Scheduler.CapacityCriticalPercent)
	assert.Equal(t, "rules.yaml", cfg.Scheduler.RulesFile)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, cfg.Cache.SummaryTTL)
	assert.True(t, cfg.Cache.Enabled)
}
