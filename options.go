package kiseki

import "log/slog"

// Option configures a Client.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger   *slog.Logger
	sampler  Sampler
	exporter Exporter
}

// WithLogger sets the structured logger for the client.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithSampler replaces the rule-based sampler built from the config's
// SampleRate and SamplingRules.
func WithSampler(s Sampler) Option {
	return func(o *resolvedOptions) { o.sampler = s }
}

// WithExporter replaces the default HTTP exporter. When set, the config's
// BaseURL, AgentID, and APIKey are not required.
func WithExporter(e Exporter) Option {
	return func(o *resolvedOptions) { o.exporter = e }
}
