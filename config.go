package kiseki

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds client configuration. Zero values for BatchSize,
// FlushInterval, SampleRate, and Timeout are replaced with defaults by New.
type Config struct {
	// BaseURL is the root URL of the kiseki collector (e.g. "http://localhost:8080").
	BaseURL string

	// AgentID identifies this agent for authentication and tracing.
	AgentID string

	// APIKey is the secret used to obtain a bearer token.
	APIKey string

	// Disabled turns the client into a no-op: every trace and span is the
	// no-op variant and nothing is buffered or sent.
	Disabled bool

	// BatchSize is the buffered payload count that triggers a flush. Defaults to 100.
	BatchSize int

	// FlushInterval is the maximum age of a buffered batch. Defaults to 5s.
	FlushInterval time.Duration

	// SampleRate is the global Bernoulli sampling rate in [0, 1]. The zero
	// value means unset and defaults to 1.0; to never sample, set a negative
	// rate (clamped to 0), a rule with Rate 0, or a custom Sampler.
	SampleRate float64

	// SamplingRules are scanned in order before SampleRate applies.
	SamplingRules []SamplingRule

	// HTTPClient is an optional custom HTTP client for the default exporter.
	HTTPClient *http.Client

	// Timeout applies to individual collector requests. Defaults to 30 seconds.
	Timeout time.Duration
}

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	defaultTimeout       = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	return c
}

// Validate checks that required configuration is present. The collector
// credentials are only required when the default HTTP exporter will be used.
func (c Config) Validate() error {
	if c.Disabled {
		return nil
	}
	if c.BaseURL == "" {
		return fmt.Errorf("kiseki: BaseURL is required")
	}
	if c.AgentID == "" {
		return fmt.Errorf("kiseki: AgentID is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("kiseki: APIKey is required")
	}
	return c.validateLimits()
}

// validateLimits checks the fields the batch buffer consumes. Applied on
// every construction path, including clients with a custom exporter.
func (c Config) validateLimits() error {
	if c.BatchSize < 0 {
		return fmt.Errorf("kiseki: BatchSize must be positive")
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("kiseki: FlushInterval must be positive")
	}
	return nil
}

// ConfigFromEnv reads configuration from KISEKI_* environment variables with
// sensible defaults. A .env file in the working directory is loaded first
// when present.
func ConfigFromEnv() Config {
	_ = godotenv.Load()

	enabled := envBool("KISEKI_ENABLED", true)
	return Config{
		BaseURL:       envStr("KISEKI_BASE_URL", ""),
		AgentID:       envStr("KISEKI_AGENT_ID", ""),
		APIKey:        envStr("KISEKI_API_KEY", ""),
		Disabled:      !enabled,
		BatchSize:     envInt("KISEKI_BATCH_SIZE", defaultBatchSize),
		FlushInterval: envDuration("KISEKI_FLUSH_INTERVAL", defaultFlushInterval),
		SampleRate:    envFloat("KISEKI_SAMPLE_RATE", 1.0),
		Timeout:       envDuration("KISEKI_TIMEOUT", defaultTimeout),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
