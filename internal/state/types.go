package state

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
)

// #region tuple-version

// TupleVersion identifies the state-tuple schema. Version 2 added the stuck
// flag as a seventh field; MigrateKey upgrades persisted v1 keys.
const TupleVersion = 2

// Arity is the number of fields in a v2 state tuple.
const Arity = 7

// #endregion

// #region phase

// Phase is the three-way learning-phase classification. It is recomputed from
// the action-history window on every build; there is no stored phase state.
type Phase int

const (
	PhasePre Phase = iota
	PhaseActive
	PhaseReflective
)

func (p Phase) String() string {
	switch p {
	case PhasePre:
		return "pre"
	case PhaseActive:
		return "active"
	case PhaseReflective:
		return "reflective"
	}
	return "unknown"
}

// #endregion

// #region engagement

// Engagement buckets the windowed engagement score.
type Engagement int

const (
	EngagementLow Engagement = iota
	EngagementMedium
	EngagementHigh
)

func (e Engagement) String() string {
	switch e {
	case EngagementLow:
		return "low"
	case EngagementMedium:
		return "medium"
	case EngagementHigh:
		return "high"
	}
	return "unknown"
}

// #endregion

// #region state

// State is the discretized behavioral state tuple. Immutable value type.
// ProgressBin and ScoreBin are quartile indices 1..4 (bin i covers the value
// range up to i×0.25).
type State struct {
	CohortID    int
	ModuleIndex int
	ProgressBin int
	ScoreBin    int
	Phase       Phase
	Engagement  Engagement
	Stuck       bool
}

// ProgressValue returns the upper boundary of the progress bin.
func (s State) ProgressValue() float64 {
	return float64(s.ProgressBin) * 0.25
}

// ScoreValue returns the upper boundary of the score bin.
func (s State) ScoreValue() float64 {
	return float64(s.ScoreBin) * 0.25
}

// Key returns the canonical 7-field table key.
func (s State) Key() string {
	stuck := 0
	if s.Stuck {
		stuck = 1
	}
	return fmt.Sprintf("%d|%d|%d|%d|%d|%d|%d",
		s.CohortID, s.ModuleIndex, s.ProgressBin, s.ScoreBin,
		int(s.Phase), int(s.Engagement), stuck)
}

// #endregion

// #region key-parsing

// ParseKey decodes a canonical v2 key back into a State.
func ParseKey(key string) (State, error) {
	parts := strings.Split(key, "|")
	if len(parts) != Arity {
		return State{}, fmt.Errorf("state key %q has %d fields, want %d", key, len(parts), Arity)
	}
	vals := make([]int, Arity)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return State{}, fmt.Errorf("state key %q field %d: %w", key, i, err)
		}
		vals[i] = v
	}
	return State{
		CohortID:    vals[0],
		ModuleIndex: vals[1],
		ProgressBin: vals[2],
		ScoreBin:    vals[3],
		Phase:       Phase(vals[4]),
		Engagement:  Engagement(vals[5]),
		Stuck:       vals[6] == 1,
	}, nil
}

// MigrateKey upgrades a persisted key to the v2 schema. Historical 6-field
// keys predate the stuck flag and migrate with stuck=0; v2 keys pass through.
func MigrateKey(key string) (string, error) {
	n := strings.Count(key, "|") + 1
	switch n {
	case Arity:
		return key, nil
	case Arity - 1:
		return key + "|0", nil
	}
	return "", fmt.Errorf("state key %q has %d fields, want %d or %d", key, n, Arity-1, Arity)
}

// #endregion

// #region history

// HistoryEntry is one telemetry action in the recent-history window.
type HistoryEntry struct {
	Type      action.Type
	Timestamp time.Time
}

// #endregion

// #region build-input

// BuildInput is the raw telemetry snapshot a state is discretized from.
// Times are in seconds.
type BuildInput struct {
	RawCohortID  int
	ModuleID     string
	Progress     float64
	Score        float64
	History      []HistoryEntry
	TimeOnTask   float64
	ExpectedTime float64
	Stuck        bool
}

// #endregion

// #region validation-error

// ValidationError reports input the builder refuses to discretize. Cohort and
// module ids outside the declared tables are rejected, never defaulted.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// #endregion
