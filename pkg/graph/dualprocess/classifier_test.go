package dualprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/cardiograph/pkg/graph"
)

func TestClassifyDefaults(t *testing.T) {
	c := New(DefaultConfig())

	cases := []struct {
		name       string
		frequency  int
		confidence float64
		want       Classification
	}{
		{
			name: "both thresholds met at the line", frequency: 5, confidence: 0.7,
			want: Classification{System1: true, System2: true, Strength: graph.TierMedium, Relevance: graph.TierHigh},
		},
		{
			name: "heavily attested", frequency: 10, confidence: 0.9,
			want: Classification{System1: true, System2: true, Strength: graph.TierHigh, Relevance: graph.TierHigh},
		},
		{
			name: "confident but rare", frequency: 2, confidence: 0.65,
			want: Classification{System2: true, Relevance: graph.TierHigh},
		},
		{
			name: "plausible only", frequency: 3, confidence: 0.4,
			want: Classification{System2: true, Relevance: graph.TierMedium},
		},
		{
			name: "frequent but weak", frequency: 20, confidence: 0.2,
			want: Classification{},
		},
		{
			name: "below everything", frequency: 1, confidence: 0.1,
			want: Classification{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Classify(tc.frequency, tc.confidence))
		})
	}
}

func TestClassifySystem1ImpliesSystem2WithDefaults(t *testing.T) {
	// With the default thresholds C1Min >= C2Min, so anything intuitive is
	// also analytically relevant.
	c := New(DefaultConfig())
	for freq := 1; freq <= 15; freq++ {
		for _, conf := range []float64{0.1, 0.3, 0.5, 0.7, 0.9, 1.0} {
			verdict := c.Classify(freq, conf)
			if verdict.System1 {
				assert.True(t, verdict.System2, "freq=%d conf=%f", freq, conf)
			}
			if !verdict.System1 {
				assert.Equal(t, graph.TierNone, verdict.Strength)
			}
			if !verdict.System2 {
				assert.Equal(t, graph.TierNone, verdict.Relevance)
			}
		}
	}
}

func TestApplyOverwritesStaleVerdict(t *testing.T) {
	c := New(DefaultConfig())

	rel := &graph.Relationship{
		Source: "aspirin", Target: "myocardial infarction", Type: graph.RelTreats,
		Frequency: 1, Confidence: 0.2,
		System1: true, System2: true,
		Strength: graph.TierHigh, Relevance: graph.TierHigh,
	}
	c.Apply(rel)

	assert.False(t, rel.System1)
	assert.False(t, rel.System2)
	assert.Equal(t, graph.TierNone, rel.Strength)
	assert.Equal(t, graph.TierNone, rel.Relevance)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CARDIOGRAPH_F1_MIN", "3")
	t.Setenv("CARDIOGRAPH_C2_HIGH", "0.8")
	t.Setenv("CARDIOGRAPH_C1_MIN", "not-a-number")

	cfg := ConfigFromEnv()
	assert.Equal(t, 3, cfg.F1Min)
	assert.InDelta(t, 0.8, cfg.C2High, 1e-9)
	assert.InDelta(t, DefaultConfig().C1Min, cfg.C1Min, 1e-9)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.F1High = 2
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.C2High = 0.1
	assert.Error(t, bad.Validate())
}
