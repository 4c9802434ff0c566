package kiseki

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("KISEKI_BASE_URL", "http://collector:8080")
	t.Setenv("KISEKI_AGENT_ID", "agent-7")
	t.Setenv("KISEKI_API_KEY", "sk-test")
	t.Setenv("KISEKI_BATCH_SIZE", "250")
	t.Setenv("KISEKI_FLUSH_INTERVAL", "2s")
	t.Setenv("KISEKI_SAMPLE_RATE", "0.25")
	t.Setenv("KISEKI_ENABLED", "false")

	cfg := ConfigFromEnv()
	assert.Equal(t, "http://collector:8080", cfg.BaseURL)
	assert.Equal(t, "agent-7", cfg.AgentID)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.True(t, cfg.Disabled)
}

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("KISEKI_BATCH_SIZE", "")
	t.Setenv("KISEKI_FLUSH_INTERVAL", "")
	t.Setenv("KISEKI_SAMPLE_RATE", "")
	t.Setenv("KISEKI_ENABLED", "")

	cfg := ConfigFromEnv()
	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, defaultFlushInterval, cfg.FlushInterval)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.False(t, cfg.Disabled)
}

func TestConfigFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("KISEKI_BATCH_SIZE", "lots")
	t.Setenv("KISEKI_FLUSH_INTERVAL", "soonish")
	t.Setenv("KISEKI_SAMPLE_RATE", "most")

	cfg := ConfigFromEnv()
	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, defaultFlushInterval, cfg.FlushInterval)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{BaseURL: "http://localhost:8080", AgentID: "a", APIKey: "k"}
	assert.NoError(t, valid.Validate())

	disabled := Config{Disabled: true}
	assert.NoError(t, disabled.Validate(), "disabled clients need no credentials")

	missing := Config{AgentID: "a", APIKey: "k"}
	assert.ErrorContains(t, missing.Validate(), "BaseURL")

	negative := Config{BaseURL: "http://localhost:8080", AgentID: "a", APIKey: "k", BatchSize: -1}
	assert.ErrorContains(t, negative.Validate(), "BatchSize")
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, defaultFlushInterval, cfg.FlushInterval)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
	assert.Equal(t, 1.0, cfg.SampleRate)

	// A negative rate is the explicit "never sample" and survives defaulting.
	never := Config{SampleRate: -1}.withDefaults()
	assert.Equal(t, -1.0, never.SampleRate)
}
