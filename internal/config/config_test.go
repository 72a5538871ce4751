package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func validConfig() *Config {
	c := Load()
	c.ApprovalSecret = testSecret
	return c
}

func TestLoadDefaults(t *testing.T) {
	c := Load()

	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "sqlite", c.DatabaseType)
	assert.Equal(t, 8, c.WorkDayStart)
	assert.Equal(t, 20, c.WorkDayEnd)
	assert.Equal(t, 30*time.Minute, c.SlotGranularity)
	assert.Equal(t, 14, c.LookaheadDays)
	assert.Equal(t, 30*time.Second, c.StepTimeout)
	assert.Equal(t, 60*time.Second, c.MonitorPollInterval)
	assert.Equal(t, "heuristic", c.Extractor)
}

func TestValidateRequiresApprovalSecret(t *testing.T) {
	c := Load()
	c.ApprovalSecret = ""
	assert.Error(t, c.Validate())

	c.ApprovalSecret = "short"
	assert.Error(t, c.Validate())

	c.ApprovalSecret = testSecret
	assert.NoError(t, c.Validate())
}

func TestValidatePostgresRequirements(t *testing.T) {
	c := validConfig()
	c.DatabaseType = "postgres"
	c.PostgresHost = ""
	assert.Error(t, c.Validate())

	c.PostgresHost = "db.internal"
	c.PostgresDB = "automation"
	c.PostgresUser = "svc"
	assert.NoError(t, c.Validate())
}

func TestValidateSchedulingWindow(t *testing.T) {
	c := validConfig()
	c.WorkDayEnd = c.WorkDayStart
	assert.Error(t, c.Validate())

	c = validConfig()
	c.WorkDayStart = -1
	assert.Error(t, c.Validate())
}

func TestValidateClampsPollInterval(t *testing.T) {
	c := validConfig()
	c.MonitorPollInterval = time.Second
	require.NoError(t, c.Validate())
	assert.Equal(t, 5*time.Second, c.MonitorPollInterval)
}

func TestValidateExtractor(t *testing.T) {
	c := validConfig()
	c.Extractor = "llm"
	assert.Error(t, c.Validate())

	c.Extractor = "openai"
	c.OpenAIAPIKey = ""
	assert.Error(t, c.Validate())

	c.OpenAIAPIKey = "sk-test"
	assert.NoError(t, c.Validate())
}
