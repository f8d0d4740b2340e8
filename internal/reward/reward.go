package reward

import (
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/cohort"
)

// #region constants

// scoreDeltaScale converts a score improvement into reward units.
const scoreDeltaScale = 10.0

// milestoneScore is the score the weak tier earns its milestone bonus for
// crossing.
const milestoneScore = 0.7

// highScoreThreshold marks a breakthrough outcome.
const highScoreThreshold = 0.9

// timeEfficiencyFraction of the expected time the strong tier must beat.
const timeEfficiencyFraction = 0.75

// repetitionRunLength is how many consecutive same-type choices trigger the
// repetition penalty.
const repetitionRunLength = 3

// #endregion

// #region preferred-difficulty

// preferredDifficulty maps each tier to the action difficulties it is
// expected to benefit from.
var preferredDifficulty = map[cohort.Tier]map[action.Difficulty]bool{
	cohort.TierWeak:   {action.DifficultyEasy: true, action.DifficultyMedium: true},
	cohort.TierMedium: {action.DifficultyMedium: true},
	cohort.TierStrong: {action.DifficultyHard: true},
}

// #endregion

// #region sequence-table

// sequenceBonus rewards beneficial action orderings, e.g. reading before a
// quiz or reviewing after one. Scaled by the tier's sequence coefficient.
var sequenceBonus = map[action.Type]map[action.Type]float64{
	action.TypeViewContent: {
		action.TypeAttemptQuiz:      2.0,
		action.TypeSubmitAssignment: 1.0,
	},
	action.TypeAttemptQuiz: {
		action.TypeSubmitQuiz: 1.0,
		action.TypeReviewQuiz: 1.5,
	},
	action.TypeReviewQuiz: {
		action.TypeAttemptQuiz: 1.0,
	},
}

// #endregion

// #region calculate

// Calculate computes the full per-component reward breakdown. Pure function;
// all component arithmetic stays finite for finite inputs.
func Calculate(in Input) Breakdown {
	return Breakdown{
		Completion:      completion(in),
		ScoreDelta:      scoreDelta(in),
		StuckPenalty:    stuckPenalty(in),
		DifficultyMatch: difficultyMatch(in),
		TimeEfficiency:  timeEfficiency(in),
		HighScore:       highScore(in),
		FailurePenalty:  failurePenalty(in),
		Diversity:       diversity(in),
		Sequence:        sequence(in),
		Repetition:      repetition(in),
	}
}

// #endregion

// #region components

func completion(in Input) float64 {
	if !in.Outcome.Completed {
		return 0
	}
	return in.Coeffs.Completion
}

func scoreDelta(in Input) float64 {
	delta := in.Outcome.Score - in.PrevScore
	if delta < 0 {
		delta = 0
	}
	r := delta * scoreDeltaScale
	if in.Tier == cohort.TierWeak && in.PrevScore < milestoneScore && in.Outcome.Score >= milestoneScore {
		r += in.Coeffs.Milestone
	}
	return r
}

func stuckPenalty(in Input) float64 {
	if !in.Stuck {
		return 0
	}
	return -in.Coeffs.StuckPenalty
}

// difficultyMatch pays out only when the action was carried through; an
// abandoned hard activity is no evidence of a good match.
func difficultyMatch(in Input) float64 {
	if !in.Outcome.Completed {
		return 0
	}
	if preferredDifficulty[in.Tier][action.DifficultyOf(in.Action.Type)] {
		return in.Coeffs.DifficultyMatch
	}
	return 0
}

func timeEfficiency(in Input) float64 {
	if in.Tier != cohort.TierStrong {
		return 0
	}
	if in.Outcome.ExpectedTime <= 0 {
		return 0
	}
	if in.Outcome.TimeSpent < timeEfficiencyFraction*in.Outcome.ExpectedTime {
		return in.Coeffs.TimeEfficiency
	}
	return 0
}

func highScore(in Input) float64 {
	if in.Outcome.Score >= highScoreThreshold {
		return in.Coeffs.HighScore
	}
	return 0
}

func failurePenalty(in Input) float64 {
	if in.Outcome.Success {
		return 0
	}
	return -in.Coeffs.FailurePenalty
}

// diversity is suppressed for a stuck weak-tier learner: switching activity
// types while stuck is churn, not exploration.
func diversity(in Input) float64 {
	if in.PrevActionType == "" || in.PrevActionType == in.Action.Type {
		return 0
	}
	if in.Tier == cohort.TierWeak && in.Stuck {
		return 0
	}
	return in.Coeffs.Diversity
}

func sequence(in Input) float64 {
	if in.PrevActionType == "" {
		return 0
	}
	base := sequenceBonus[in.PrevActionType][in.Action.Type]
	return base * in.Coeffs.SequenceScale
}

func repetition(in Input) float64 {
	if in.ConsecutiveSameType < repetitionRunLength {
		return 0
	}
	return -in.Coeffs.RepetitionPenalty
}

// #endregion
