package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LEADOPS_AUTH_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://localhost/leadops")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, "postgres://localhost/leadops", cfg.DatabaseURL)
	assert.Equal(t, defaultKafkaTopic, cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.OptimizerInterval)
	assert.True(t, cfg.OptimizerEnabled)
	assert.Equal(t, "lead-intake", cfg.WorkflowID)
	assert.False(t, cfg.Production())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEADOPS_AUTH_SECRET", "s3cret")
	t.Setenv("LEADOPS_DATABASE_URL", "postgres://primary")
	t.Setenv("DATABASE_URL", "postgres://fallback")
	t.Setenv("LEADOPS_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("LEADOPS_POLL_INTERVAL", "15s")
	t.Setenv("LEADOPS_OPTIMIZER_ENABLED", "false")
	t.Setenv("LEADOPS_MESSAGING_RETRIES", "5")
	t.Setenv("LEADOPS_RULES_FILE", "/etc/leadops/rules.yaml")
	t.Setenv("LEADOPS_REQUEST_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary", cfg.DatabaseURL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.False(t, cfg.OptimizerEnabled)
	assert.Equal(t, 5, cfg.MessagingRetries)
	assert.Equal(t, "/etc/leadops/rules.yaml", cfg.RulesFile)
	assert.Equal(t, defaultRequestTimeout, cfg.RequestTimeout)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load()
	assert.ErrorContains(t, err, "LEADOPS_AUTH_SECRET")

	t.Setenv("LEADOPS_DEV_ALLOW_LOCAL", "true")
	_, err = Load()
	require.NoError(t, err)

	t.Setenv("LEADOPS_ENV", "production")
	_, err = Load()
	assert.ErrorContains(t, err, "production")

	t.Setenv("LEADOPS_DEV_ALLOW_LOCAL", "false")
	t.Setenv("LEADOPS_AUTH_SECRET", "s3cret")
	_, err = Load()
	assert.ErrorContains(t, err, "LEADOPS_KAFKA_BROKERS")

	t.Setenv("LEADOPS_KAFKA_BROKERS", "kafka:9092")
	t.Setenv("LEADOPS_POLL_INTERVAL", "10ms")
	_, err = Load()
	assert.ErrorContains(t, err, "LEADOPS_POLL_INTERVAL")
}
