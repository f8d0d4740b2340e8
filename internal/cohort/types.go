package cohort

// #region tier

// Tier is the coarse performance band of a learner cohort, assigned by the
// offline clustering pipeline.
type Tier string

const (
	TierWeak   Tier = "weak"
	TierMedium Tier = "medium"
	TierStrong Tier = "strong"
)

// #endregion

// #region coefficients

// Coefficients are the per-tier reward and learning-rate knobs. Magnitudes are
// empirically chosen and overridable from the profiles file; components read
// them by name instead of hard-coding constants.
type Coefficients struct {
	QLearningRate     float64 `yaml:"q_learning_rate"`
	MasteryRate       float64 `yaml:"mastery_rate"`
	Completion        float64 `yaml:"completion"`
	Milestone         float64 `yaml:"milestone"`
	StuckPenalty      float64 `yaml:"stuck_penalty"`
	DifficultyMatch   float64 `yaml:"difficulty_match"`
	TimeEfficiency    float64 `yaml:"time_efficiency"`
	HighScore         float64 `yaml:"high_score"`
	FailurePenalty    float64 `yaml:"failure_penalty"`
	Diversity         float64 `yaml:"diversity"`
	SequenceScale     float64 `yaml:"sequence_scale"`
	RepetitionPenalty float64 `yaml:"repetition_penalty"`
}

// #endregion

// #region profiles

// Profiles holds the read-only per-tier coefficient tables and the mapping
// from remapped cohort id to tier. Built once at startup, replaced wholesale
// on config reload.
type Profiles struct {
	coeffs     map[Tier]Coefficients
	cohortTier map[int]Tier
}

// DefaultProfiles returns the built-in coefficient tables and a three-cohort
// tier mapping (0=weak, 1=medium, 2=strong).
func DefaultProfiles() *Profiles {
	return &Profiles{
		coeffs: map[Tier]Coefficients{
			TierWeak: {
				QLearningRate:     0.3,
				MasteryRate:       0.3,
				Completion:        3.0,
				Milestone:         2.0,
				StuckPenalty:      2.0,
				DifficultyMatch:   2.0,
				TimeEfficiency:    0,
				HighScore:         3.0,
				FailurePenalty:    1.0,
				Diversity:         0.5,
				SequenceScale:     1.2,
				RepetitionPenalty: 0.5,
			},
			TierMedium: {
				QLearningRate:     0.2,
				MasteryRate:       0.2,
				Completion:        2.0,
				Milestone:         0,
				StuckPenalty:      1.5,
				DifficultyMatch:   1.5,
				TimeEfficiency:    0,
				HighScore:         2.0,
				FailurePenalty:    1.5,
				Diversity:         0.5,
				SequenceScale:     1.0,
				RepetitionPenalty: 1.0,
			},
			TierStrong: {
				QLearningRate:     0.1,
				MasteryRate:       0.1,
				Completion:        1.0,
				Milestone:         0,
				StuckPenalty:      1.0,
				DifficultyMatch:   1.0,
				TimeEfficiency:    1.5,
				HighScore:         1.0,
				FailurePenalty:    2.0,
				Diversity:         0.5,
				SequenceScale:     0.8,
				RepetitionPenalty: 1.5,
			},
		},
		cohortTier: map[int]Tier{
			0: TierWeak,
			1: TierMedium,
			2: TierStrong,
		},
	}
}

// TierOf maps a remapped cohort id to its tier. Cohort validation happens in
// the state builder; ids that slip past it get the medium tier as the neutral
// default.
func (p *Profiles) TierOf(cohortID int) Tier {
	if t, ok := p.cohortTier[cohortID]; ok {
		return t
	}
	return TierMedium
}

// Coefficients returns the coefficient table for a tier.
func (p *Profiles) Coefficients(tier Tier) Coefficients {
	return p.coeffs[tier]
}

// QLearningRate returns the Bellman-update step size for a tier.
func (p *Profiles) QLearningRate(tier Tier) float64 {
	return p.coeffs[tier].QLearningRate
}

// MasteryRate returns the mastery EMA step size for a tier.
func (p *Profiles) MasteryRate(tier Tier) float64 {
	return p.coeffs[tier].MasteryRate
}

// Cohorts returns the number of mapped cohorts.
func (p *Profiles) Cohorts() int {
	return len(p.cohortTier)
}

// #endregion
