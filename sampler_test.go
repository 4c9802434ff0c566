package kiseki

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSamplerRateOneAlwaysSamples(t *testing.T) {
	s := NewRuleSampler(1.0, nil)
	for range 1000 {
		assert.True(t, s.ShouldSample(NewTraceID(), "op"))
	}
}

func TestSamplerRateZeroNeverSamples(t *testing.T) {
	s := NewRuleSampler(0.0, nil)
	for range 1000 {
		assert.False(t, s.ShouldSample(NewTraceID(), "op"))
	}
}

func TestSamplerRatesAreClamped(t *testing.T) {
	assert.True(t, NewRuleSampler(7.5, nil).ShouldSample(NewTraceID(), "op"))
	assert.False(t, NewRuleSampler(-3, nil).ShouldSample(NewTraceID(), "op"))
}

func TestSamplerFirstMatchingRuleWins(t *testing.T) {
	s := NewRuleSampler(0.0, []SamplingRule{
		{TraceNamePattern: "checkout/*", Rate: 1.0},
		{TraceNamePattern: "checkout/**", Rate: 0.0}, // shadowed for single-segment names
	})

	assert.True(t, s.ShouldSample("t1", "checkout/pay"))
	assert.False(t, s.ShouldSample("t1", "search"), "unmatched names fall back to the global rate")
}

func TestSamplerRuleMatchesBothPatterns(t *testing.T) {
	s := NewRuleSampler(0.0, []SamplingRule{
		{TraceNamePattern: "debug*", TraceIDPattern: "aa*", Rate: 1.0},
	})

	assert.True(t, s.ShouldSample("aa00", "debug-run"))
	assert.False(t, s.ShouldSample("bb00", "debug-run"), "id pattern must also match")
	assert.False(t, s.ShouldSample("aa00", "prod-run"), "name pattern must also match")
}

func TestSamplerEmptyPatternAlwaysMatches(t *testing.T) {
	s := NewRuleSampler(0.0, []SamplingRule{{Rate: 1.0}})
	assert.True(t, s.ShouldSample(NewTraceID(), ""))
}

func TestSamplerInvalidPatternNeverMatches(t *testing.T) {
	s := NewRuleSampler(1.0, []SamplingRule{
		{TraceNamePattern: "[", Rate: 0.0},
	})
	// The broken rule is skipped, so the global rate applies.
	assert.True(t, s.ShouldSample(NewTraceID(), "anything"))
}

func TestSamplerRuleRateClamped(t *testing.T) {
	s := NewRuleSampler(0.0, []SamplingRule{{TraceNamePattern: "op", Rate: 99}})
	assert.True(t, s.ShouldSample("t1", "op"))
}
