package mastery

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/cohort"
)

// #region constants

// DefaultMastery is assumed for an outcome until its first observation.
const DefaultMastery = 0.4

// PotentialTarget is the mastery every weak outcome is assumed to reach when
// computing the potential score. Used for explanation text only.
const PotentialTarget = 0.8

// WeakThreshold is the default cut below which an outcome counts as weak.
const WeakThreshold = 0.6

// #endregion

// #region types

// WeakOutcome is one entry of the prioritized weak-outcome list.
type WeakOutcome struct {
	OutcomeID string
	Mastery   float64
	Weight    float64
	Priority  float64 // (1 − mastery) × weight
}

// Projection is the summative-score projection for a learner.
type Projection struct {
	Current   float64
	Potential float64
}

type learnerRecord struct {
	mu      sync.Mutex
	mastery map[string]float64
}

// #endregion

// #region tracker

// Tracker maintains per-learner, per-outcome mastery scalars. Mutation goes
// through the EMA update rule only; values are overwritten, never deleted.
// Synchronization is per learner.
type Tracker struct {
	mu       sync.Mutex // guards the learners map and the profiles pointer
	learners map[string]*learnerRecord

	weights    map[string]float64 // outcome id → summative weight
	totalMarks float64
	profiles   *cohort.Profiles
	store      *Store // nil = in-memory only
}

// NewTracker creates a tracker over the externally supplied outcome weighting
// table. store may be nil for in-memory operation.
func NewTracker(weights map[string]float64, totalMarks float64, profiles *cohort.Profiles, store *Store) (*Tracker, error) {
	t := &Tracker{
		learners:   make(map[string]*learnerRecord),
		weights:    weights,
		totalMarks: totalMarks,
		profiles:   profiles,
		store:      store,
	}
	if store != nil {
		persisted, err := store.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("load mastery: %w", err)
		}
		for learner, outcomes := range persisted {
			t.learners[learner] = &learnerRecord{mastery: outcomes}
		}
	}
	return t, nil
}

// SetProfiles swaps the coefficient tables, e.g. after a config reload.
func (t *Tracker) SetProfiles(p *cohort.Profiles) {
	t.mu.Lock()
	t.profiles = p
	t.mu.Unlock()
}

func (t *Tracker) learner(id string) *learnerRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.learners[id]
	if !ok {
		rec = &learnerRecord{mastery: make(map[string]float64)}
		t.learners[id] = rec
	}
	return rec
}

// #endregion

// #region read

// Mastery returns the current mastery scalar, DefaultMastery if unobserved.
func (t *Tracker) Mastery(learnerID, outcomeID string) float64 {
	rec := t.learner(learnerID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if m, ok := rec.mastery[outcomeID]; ok {
		return m
	}
	return DefaultMastery
}

// Weight returns the summative weight of an outcome, 0 if unmapped.
func (t *Tracker) Weight(outcomeID string) float64 {
	return t.weights[outcomeID]
}

// #endregion

// #region update

// Update applies the EMA rule m ← m + α(tier)·(target − m), clamped to [0,1],
// and persists the new value. A non-finite target is a programming error
// upstream and is rejected.
func (t *Tracker) Update(learnerID string, tier cohort.Tier, outcomeID string, target float64) (float64, error) {
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return 0, fmt.Errorf("non-finite mastery target %f for %s/%s", target, learnerID, outcomeID)
	}

	t.mu.Lock()
	alpha := t.profiles.MasteryRate(tier)
	t.mu.Unlock()
	rec := t.learner(learnerID)

	rec.mu.Lock()
	current, ok := rec.mastery[outcomeID]
	if !ok {
		current = DefaultMastery
	}
	next := current + alpha*(target-current)
	if next < 0 {
		next = 0
	}
	if next > 1 {
		next = 1
	}
	rec.mastery[outcomeID] = next
	rec.mu.Unlock()

	if t.store != nil {
		if err := t.store.Upsert(learnerID, outcomeID, next); err != nil {
			return next, fmt.Errorf("persist mastery: %w", err)
		}
	}
	return next, nil
}

// #endregion

// #region weak-outcomes

// WeakOutcomes lists every weighted outcome below the threshold, descending
// by priority, ties broken by outcome id for determinism. Unobserved outcomes
// participate at the default mastery.
func (t *Tracker) WeakOutcomes(learnerID string, threshold float64) []WeakOutcome {
	rec := t.learner(learnerID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	var out []WeakOutcome
	for outcomeID, weight := range t.weights {
		m, ok := rec.mastery[outcomeID]
		if !ok {
			m = DefaultMastery
		}
		if m >= threshold {
			continue
		}
		out = append(out, WeakOutcome{
			OutcomeID: outcomeID,
			Mastery:   m,
			Weight:    weight,
			Priority:  (1 - m) * weight,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].OutcomeID < out[j].OutcomeID
	})
	return out
}

// #endregion

// #region projection

// ProjectScore computes the weighted summative score plus the potential score
// with every weak outcome raised to PotentialTarget. Explanation text only —
// never a control input.
func (t *Tracker) ProjectScore(learnerID string) Projection {
	rec := t.learner(learnerID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	var current, potential float64
	for outcomeID, weight := range t.weights {
		m, ok := rec.mastery[outcomeID]
		if !ok {
			m = DefaultMastery
		}
		current += m * weight * t.totalMarks

		pm := m
		if pm < WeakThreshold && pm < PotentialTarget {
			pm = PotentialTarget
		}
		potential += pm * weight * t.totalMarks
	}
	return Projection{Current: current, Potential: potential}
}

// #endregion
