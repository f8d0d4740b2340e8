package reward

import (
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/cohort"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/state"
)

// #region outcome

// Outcome is the observed result of a learner acting on a recommendation.
// Times are in seconds.
type Outcome struct {
	Completed    bool
	Score        float64
	Success      bool
	TimeSpent    float64
	ExpectedTime float64
}

// #endregion

// #region input

// Input bundles everything the calculator reads. Calculation is a pure
// function of this value.
type Input struct {
	Tier   cohort.Tier
	Coeffs cohort.Coefficients

	State   state.State // state the action was selected in
	Action  action.Action
	Outcome Outcome

	// PrevScore is the continuous score before the action, for the delta
	// component.
	PrevScore float64

	// PrevActionType is the immediately preceding action type, empty on the
	// first action of a session.
	PrevActionType action.Type

	// ConsecutiveSameType counts how many times this action type has now been
	// chosen in a row, including the current choice.
	ConsecutiveSameType int

	// Stuck is the externally supplied stuck indicator.
	Stuck bool
}

// #endregion

// #region breakdown

// Breakdown exposes the ten components individually so each is testable and
// loggable; Total is their plain sum with no normalization.
type Breakdown struct {
	Completion      float64
	ScoreDelta      float64
	StuckPenalty    float64
	DifficultyMatch float64
	TimeEfficiency  float64
	HighScore       float64
	FailurePenalty  float64
	Diversity       float64
	Sequence        float64
	Repetition      float64
}

// Total sums all components.
func (b Breakdown) Total() float64 {
	return b.Completion + b.ScoreDelta + b.StuckPenalty + b.DifficultyMatch +
		b.TimeEfficiency + b.HighScore + b.FailurePenalty + b.Diversity +
		b.Sequence + b.Repetition
}

// #endregion
