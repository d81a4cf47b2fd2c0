package freshness

import (
	"math"
	"time"

	"github.com/phrazzld/lexis-api/internal/config"
)

// Decay curves
const (
	DecayLinear      = "linear"
	DecayExponential = "exponential"
)

// exponentialRate shapes the exponential curve. Larger values front-load the
// decay.
const exponentialRate = 5.0

// Scorer computes recency multipliers and final scores.
type Scorer struct {
	maxMultiplier  float64
	breakingWindow time.Duration
	cutoff         time.Duration
	decay          string
}

// NewScorer creates a scorer from the freshness settings. A cutoff inside the
// breaking window is raised to it.
func NewScorer(cfg config.FreshnessConfig) *Scorer {
	s := &Scorer{
		maxMultiplier:  cfg.MaxMultiplier,
		breakingWindow: time.Duration(cfg.BreakingWindowMinutes) * time.Minute,
		cutoff:         time.Duration(cfg.CutoffHours) * time.Hour,
		decay:          cfg.Decay,
	}
	if s.maxMultiplier < 1 {
		s.maxMultiplier = 1
	}
	if s.cutoff < s.breakingWindow {
		s.cutoff = s.breakingWindow
	}
	return s
}

// RecencyMultiplier returns the boost for content of the given age and
// whether it counts as breaking. Negative ages are treated as zero.
func (s *Scorer) RecencyMultiplier(age time.Duration) (multiplier float64, breaking bool) {
	if age < 0 {
		age = 0
	}
	if age <= s.breakingWindow {
		return s.maxMultiplier, true
	}
	if age >= s.cutoff {
		return 1.0, false
	}

	// x runs from 0 at the end of the breaking window to 1 at the cutoff.
	x := float64(age-s.breakingWindow) / float64(s.cutoff-s.breakingWindow)
	var remaining float64
	switch s.decay {
	case DecayLinear:
		remaining = 1 - x
	default:
		floor := math.Exp(-exponentialRate)
		remaining = (math.Exp(-exponentialRate*x) - floor) / (1 - floor)
	}
	return 1 + (s.maxMultiplier-1)*remaining, false
}

// Score applies the recency multiplier for content published at publishedAt.
func (s *Scorer) Score(baseQuality float64, publishedAt, now time.Time) (score, multiplier float64, breaking bool) {
	multiplier, breaking = s.RecencyMultiplier(now.Sub(publishedAt))
	return baseQuality * multiplier, multiplier, breaking
}
