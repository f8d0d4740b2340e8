package recommend

import (
	"context"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
)

// #region activity

// Activity is one concrete content item, as described by the course metadata
// collaborator.
type Activity struct {
	ID          string
	Name        string
	ModuleIndex int
	Difficulty  action.Difficulty
	Kind        action.Category // declared content type, matched to action categories
	Outcomes    []string        // learning outcomes the item targets
}

// #endregion

// #region catalog

// Catalog is the read side of the course content metadata collaborator.
// Implementations must honor ctx cancellation.
type Catalog interface {
	ForOutcome(ctx context.Context, outcomeID string) ([]Activity, error)
}

// #endregion

// #region config

// Config holds the candidate-search and priority knobs.
type Config struct {
	WeakOutcomeCap  int // outcomes considered per search pass
	RelaxPasses     int // additional next-weakest passes before the default
	RecencyWindow   int // "not chosen again within the last M attempts"
	MaxAlternatives int

	WeaknessScale      float64 // × (1 − mastery)
	SameModuleBonus    float64
	AdjacentModule     float64
	MultiCoverageBonus float64 // per additional weak outcome the item targets
}

// DefaultConfig returns the standard search knobs.
func DefaultConfig() Config {
	return Config{
		WeakOutcomeCap:     5,
		RelaxPasses:        2,
		RecencyWindow:      3,
		MaxAlternatives:    3,
		WeaknessScale:      10,
		SameModuleBonus:    1.5,
		AdjacentModule:     1.0,
		MultiCoverageBonus: 0.5,
	}
}

// #endregion

// #region results

// Candidate is a scored content item considered for recommendation.
type Candidate struct {
	Activity      Activity
	TargetOutcome string
	Priority      float64
}

// Recommendation is the selected item plus bounded alternatives. Fallback is
// set when the deterministic default was used.
type Recommendation struct {
	Activity      Activity
	TargetOutcome string
	Priority      float64
	Explanation   string
	Alternatives  []Candidate
	Fallback      bool
}

// #endregion
