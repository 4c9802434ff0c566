package kiseki

import (
	"math/rand/v2"

	"github.com/bmatcuk/doublestar/v4"
)

// Sampler decides whether a new trace should be recorded.
type Sampler interface {
	ShouldSample(traceID, name string) bool
}

// SamplingRule targets a subset of traces with its own sampling rate.
// Patterns use doublestar glob syntax; an empty pattern always matches.
type SamplingRule struct {
	// TraceNamePattern is matched against the trace name.
	TraceNamePattern string
	// TraceIDPattern is matched against the trace id.
	TraceIDPattern string
	// Rate is the probability of sampling a matching trace, clamped to [0, 1].
	Rate float64
}

// RuleSampler scans its rules in declaration order; the first rule whose
// patterns both match wins and its rate is used as a Bernoulli draw. When no
// rule matches, the global rate applies.
//
// The decision is probabilistic per call, not consistent for a given trace
// id: sampling the same id twice may give different answers. This is a known
// limitation, not a bug.
type RuleSampler struct {
	rate  float64
	rules []SamplingRule
}

// NewRuleSampler builds a sampler with the given global rate and ordered
// rules. All rates are clamped to [0, 1].
func NewRuleSampler(rate float64, rules []SamplingRule) *RuleSampler {
	clamped := make([]SamplingRule, len(rules))
	for i, r := range rules {
		r.Rate = clampRate(r.Rate)
		clamped[i] = r
	}
	return &RuleSampler{rate: clampRate(rate), rules: clamped}
}

// ShouldSample reports whether a trace with the given id and name should be
// recorded.
func (s *RuleSampler) ShouldSample(traceID, name string) bool {
	for _, r := range s.rules {
		if globMatch(r.TraceNamePattern, name) && globMatch(r.TraceIDPattern, traceID) {
			return draw(r.Rate)
		}
	}
	return draw(s.rate)
}

// globMatch treats an empty pattern as always matching and an invalid
// pattern as never matching.
func globMatch(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	ok, err := doublestar.Match(pattern, value)
	return err == nil && ok
}

func draw(rate float64) bool {
	if rate >= 1 {
		return true
	}
	if rate <= 0 {
		return false
	}
	return rand.Float64() < rate
}

func clampRate(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}
