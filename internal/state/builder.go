package state

import (
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
)

// #region config

// BuilderConfig declares the finite domains and scoring knobs of the builder.
type BuilderConfig struct {
	// ExcludedCohorts are raw cluster ids that never belong to learners
	// (staff, test accounts). Seeing one is a validation failure.
	ExcludedCohorts map[int]bool
	// CohortRemap maps raw cluster ids to the contiguous [0,n) range the
	// profiles file is keyed by.
	CohortRemap map[int]int
	// ModuleIndex maps course module ids to their position in module order.
	ModuleIndex map[string]int
	// WindowSize bounds how much of the action history feeds phase and
	// engagement classification.
	WindowSize int

	// Engagement scoring knobs.
	TimeBonusFractions   [2]float64 // fractions of expected time granting a bonus each
	TimeBonus            float64
	ConsistencyBand      [2]float64 // target inter-action gap band, seconds
	ConsistencyBonus     float64
	EngagementThresholds [2]float64 // low/medium and medium/high cut points

	// Phase fallback thresholds on progress.
	PreThreshold        float64 // below → pre
	ReflectiveThreshold float64 // at or above → reflective (also the tie-break gate)
}

// DefaultBuilderConfig returns the declared v2 domains and scoring defaults.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		ExcludedCohorts:      map[int]bool{},
		CohortRemap:          map[int]int{0: 0, 1: 1, 2: 2},
		ModuleIndex:          map[string]int{},
		WindowSize:           10,
		TimeBonusFractions:   [2]float64{0.5, 1.0},
		TimeBonus:            0.5,
		ConsistencyBand:      [2]float64{30, 600},
		ConsistencyBonus:     0.5,
		EngagementThresholds: [2]float64{3.0, 6.0},
		PreThreshold:         0.3,
		ReflectiveThreshold:  0.6,
	}
}

// #endregion

// #region builder

// Builder discretizes raw telemetry into state tuples. Building is a pure
// function of its input; identical telemetry always yields the identical tuple.
type Builder struct {
	cfg BuilderConfig
}

// NewBuilder creates a builder over the declared domains.
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10
	}
	return &Builder{cfg: cfg}
}

// SpaceSize is the total state-space cardinality: the product of per-dimension
// domain sizes, computed without enumeration.
func (b *Builder) SpaceSize() int {
	cohorts := len(distinctRemapTargets(b.cfg.CohortRemap))
	modules := len(b.cfg.ModuleIndex)
	// 4 progress bins × 4 score bins × 3 phases × 3 engagement levels × 2 stuck
	return cohorts * modules * 4 * 4 * 3 * 3 * 2
}

func distinctRemapTargets(remap map[int]int) map[int]bool {
	out := make(map[int]bool, len(remap))
	for _, v := range remap {
		out[v] = true
	}
	return out
}

// #endregion

// #region build

// Build discretizes one telemetry snapshot.
func (b *Builder) Build(in BuildInput) (State, error) {
	if b.cfg.ExcludedCohorts[in.RawCohortID] {
		return State{}, &ValidationError{
			Field:  "cohort_id",
			Value:  in.RawCohortID,
			Reason: "cohort is in the exclusion set",
		}
	}
	cohortID, ok := b.cfg.CohortRemap[in.RawCohortID]
	if !ok {
		return State{}, &ValidationError{
			Field:  "cohort_id",
			Value:  in.RawCohortID,
			Reason: "cohort not in the remap table",
		}
	}

	moduleIdx, ok := b.cfg.ModuleIndex[in.ModuleID]
	if !ok {
		return State{}, &ValidationError{
			Field:  "module_id",
			Value:  in.ModuleID,
			Reason: "module not in the index table",
		}
	}

	window := b.window(in.History)

	return State{
		CohortID:    cohortID,
		ModuleIndex: moduleIdx,
		ProgressBin: QuartileBin(in.Progress),
		ScoreBin:    QuartileBin(in.Score),
		Phase:       b.classifyPhase(window, in.Progress),
		Engagement:  b.classifyEngagement(window, in.TimeOnTask, in.ExpectedTime),
		Stuck:       in.Stuck,
	}, nil
}

// window returns the tail of the history bounded by WindowSize.
func (b *Builder) window(history []HistoryEntry) []HistoryEntry {
	if len(history) <= b.cfg.WindowSize {
		return history
	}
	return history[len(history)-b.cfg.WindowSize:]
}

// #endregion

// #region binning

// QuartileBin maps a [0,1] value to bin index 1..4 using the first bin
// boundary ≥ value. Values are clamped first; 0 lands in bin 1.
func QuartileBin(v float64) int {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	for bin := 1; bin <= 4; bin++ {
		if v <= float64(bin)*0.25 {
			return bin
		}
	}
	return 4
}

// #endregion

// #region phase

// classifyPhase counts window actions per category; a strict majority wins.
// Ties prefer active, then reflective if progress has crossed the reflective
// threshold; otherwise the progress heuristic decides. Empty windows use the
// progress heuristic directly.
func (b *Builder) classifyPhase(window []HistoryEntry, progress float64) Phase {
	var pre, active, reflective int
	for _, h := range window {
		switch action.CategoryOf(h.Type) {
		case action.CategoryPre:
			pre++
		case action.CategoryActive:
			active++
		case action.CategoryReflective:
			reflective++
		}
	}

	max := pre
	if active > max {
		max = active
	}
	if reflective > max {
		max = reflective
	}
	if max == 0 {
		return b.phaseFromProgress(progress)
	}

	tied := 0
	if pre == max {
		tied++
	}
	if active == max {
		tied++
	}
	if reflective == max {
		tied++
	}
	if tied == 1 {
		switch max {
		case pre:
			return PhasePre
		case active:
			return PhaseActive
		default:
			return PhaseReflective
		}
	}

	if active == max {
		return PhaseActive
	}
	if reflective == max && progress >= b.cfg.ReflectiveThreshold {
		return PhaseReflective
	}
	return b.phaseFromProgress(progress)
}

func (b *Builder) phaseFromProgress(progress float64) Phase {
	switch {
	case progress < b.cfg.PreThreshold:
		return PhasePre
	case progress >= b.cfg.ReflectiveThreshold:
		return PhaseReflective
	default:
		return PhaseActive
	}
}

// #endregion

// #region engagement

// classifyEngagement sums action quality weights over the window, adds the
// time-on-task and consistency bonuses, and buckets against the two fixed
// thresholds.
func (b *Builder) classifyEngagement(window []HistoryEntry, timeOnTask, expected float64) Engagement {
	var score float64
	for _, h := range window {
		score += action.QualityWeight(h.Type)
	}

	if expected > 0 {
		if timeOnTask >= b.cfg.TimeBonusFractions[0]*expected {
			score += b.cfg.TimeBonus
		}
		if timeOnTask >= b.cfg.TimeBonusFractions[1]*expected {
			score += b.cfg.TimeBonus
		}
	}

	if b.consistentGaps(window) {
		score += b.cfg.ConsistencyBonus
	}

	switch {
	case score < b.cfg.EngagementThresholds[0]:
		return EngagementLow
	case score < b.cfg.EngagementThresholds[1]:
		return EngagementMedium
	default:
		return EngagementHigh
	}
}

// consistentGaps reports whether every inter-action gap in the window falls
// inside the target band. Requires at least two timestamped entries.
func (b *Builder) consistentGaps(window []HistoryEntry) bool {
	if len(window) < 2 {
		return false
	}
	for i := 1; i < len(window); i++ {
		gap := window[i].Timestamp.Sub(window[i-1].Timestamp).Seconds()
		if gap < b.cfg.ConsistencyBand[0] || gap > b.cfg.ConsistencyBand[1] {
			return false
		}
	}
	return true
}

// #endregion
