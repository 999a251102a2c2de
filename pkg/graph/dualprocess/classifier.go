// Package dualprocess assigns system1/system2 membership to aggregated
// relationships, following the dual-process model of clinical reasoning:
// system 1 holds the intuitive, heavily attested associations a learner
// should recall instantly; system 2 admits rarer but still plausible links
// worth analytical attention.
package dualprocess

import (
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/athapong/cardiograph/pkg/graph"
)

// Config names every tiering threshold so recalibration never touches
// classifier logic.
type Config struct {
	// F1Min and C1Min gate system 1 membership: a relationship qualifies
	// only when both its frequency and confidence clear these bars.
	F1Min int
	C1Min float64

	// F1High promotes a system 1 relationship from medium to high strength.
	F1High int

	// C2Min gates system 2 membership on confidence alone, a lower bar
	// than C1Min. C2High promotes relevance from medium to high.
	C2Min  float64
	C2High float64
}

// DefaultConfig returns the documented defaults: system 1 requires five
// attestations at confidence 0.7; system 2 admits anything at 0.3.
func DefaultConfig() Config {
	return Config{
		F1Min:  5,
		F1High: 10,
		C1Min:  0.7,
		C2Min:  0.3,
		C2High: 0.6,
	}
}

// ConfigFromEnv overlays CARDIOGRAPH_* environment variables onto the
// defaults. Unset or malformed variables keep their default.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v, err := strconv.Atoi(os.Getenv("CARDIOGRAPH_F1_MIN")); err == nil {
		cfg.F1Min = v
	}
	if v, err := strconv.Atoi(os.Getenv("CARDIOGRAPH_F1_HIGH")); err == nil {
		cfg.F1High = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("CARDIOGRAPH_C1_MIN"), 64); err == nil {
		cfg.C1Min = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("CARDIOGRAPH_C2_MIN"), 64); err == nil {
		cfg.C2Min = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("CARDIOGRAPH_C2_HIGH"), 64); err == nil {
		cfg.C2High = v
	}
	return cfg
}

// Validate rejects configurations that would make the tiers incoherent.
func (c Config) Validate() error {
	if c.F1Min < 1 || c.F1High < c.F1Min {
		return errors.Errorf("dualprocess: frequency thresholds out of order (min=%d high=%d)", c.F1Min, c.F1High)
	}
	if c.C1Min < 0 || c.C1Min > 1 || c.C2Min < 0 || c.C2Min > 1 || c.C2High < c.C2Min || c.C2High > 1 {
		return errors.Errorf("dualprocess: confidence thresholds out of range")
	}
	return nil
}

// Classification is the dual-process verdict for one relationship's current
// aggregates. System1 and System2 are not mutually exclusive.
type Classification struct {
	System1   bool
	System2   bool
	Strength  graph.Tier
	Relevance graph.Tier
}

// Classifier computes classifications from relationship aggregates.
type Classifier struct {
	cfg Config
}

// New returns a classifier over the given thresholds.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify recomputes the verdict from current frequency and confidence
// aggregates. It is a pure function of its inputs: callers invoke it after
// every merge rather than patching flags incrementally.
func (c *Classifier) Classify(frequency int, confidence float64) Classification {
	var out Classification

	if frequency >= c.cfg.F1Min && confidence >= c.cfg.C1Min {
		out.System1 = true
		if frequency >= c.cfg.F1High {
			out.Strength = graph.TierHigh
		} else {
			out.Strength = graph.TierMedium
		}
	}

	if confidence >= c.cfg.C2Min {
		out.System2 = true
		if confidence >= c.cfg.C2High {
			out.Relevance = graph.TierHigh
		} else {
			out.Relevance = graph.TierMedium
		}
	}

	return out
}

// Apply classifies rel from its own aggregates and writes the verdict back,
// clearing any tier whose system flag is off.
func (c *Classifier) Apply(rel *graph.Relationship) {
	verdict := c.Classify(rel.Frequency, rel.Confidence)
	rel.System1 = verdict.System1
	rel.System2 = verdict.System2
	rel.Strength = verdict.Strength
	rel.Relevance = verdict.Relevance
}
