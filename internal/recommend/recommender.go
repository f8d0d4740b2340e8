package recommend

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/cohort"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/mastery"
)

// #region recommender

// Recommender maps an abstract action to a concrete content item ranked by
// per-outcome mastery gaps. Selection never fails: any error inside the
// candidate search degrades to the deterministic default item.
type Recommender struct {
	catalog  Catalog
	tracker  *mastery.Tracker
	profiles *cohort.Profiles
	cfg      Config
}

// New creates a recommender over the given collaborators.
func New(catalog Catalog, tracker *mastery.Tracker, profiles *cohort.Profiles, cfg Config) *Recommender {
	return &Recommender{catalog: catalog, tracker: tracker, profiles: profiles, cfg: cfg}
}

// #endregion

// #region select

// Select picks the concrete item for an abstract action. recent carries the
// learner's last chosen activity ids, newest last.
func (r *Recommender) Select(ctx context.Context, learnerID string, act action.Action, moduleIndex int, tier cohort.Tier, recent []string) Recommendation {
	weak := r.tracker.WeakOutcomes(learnerID, mastery.WeakThreshold)
	recentSet := r.recencySet(recent)

	// Search pass over the weakest cap-sized chunk, relaxing to the next
	// chunk while nothing qualifies.
	for pass := 0; pass <= r.cfg.RelaxPasses; pass++ {
		lo := pass * r.cfg.WeakOutcomeCap
		if lo >= len(weak) {
			break
		}
		hi := lo + r.cfg.WeakOutcomeCap
		if hi > len(weak) {
			hi = len(weak)
		}

		candidates, err := r.gather(ctx, weak, weak[lo:hi], act, moduleIndex, recentSet)
		if err != nil {
			log.Printf("[RECOMMEND] candidate search failed for %s: %v, using fallback", learnerID, err)
			return r.fallback(act, moduleIndex, tier)
		}
		if len(candidates) == 0 {
			continue
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Priority != candidates[j].Priority {
				return candidates[i].Priority > candidates[j].Priority
			}
			return candidates[i].Activity.ID < candidates[j].Activity.ID
		})

		best := candidates[0]
		alts := candidates[1:]
		if len(alts) > r.cfg.MaxAlternatives {
			alts = alts[:r.cfg.MaxAlternatives]
		}
		return Recommendation{
			Activity:      best.Activity,
			TargetOutcome: best.TargetOutcome,
			Priority:      best.Priority,
			Explanation: Explain(best.TargetOutcome,
				r.tracker.Mastery(learnerID, best.TargetOutcome),
				r.profiles.MasteryRate(tier),
				best.Activity.Difficulty),
			Alternatives: alts,
		}
	}

	return r.fallback(act, moduleIndex, tier)
}

func (r *Recommender) recencySet(recent []string) map[string]bool {
	if len(recent) > r.cfg.RecencyWindow {
		recent = recent[len(recent)-r.cfg.RecencyWindow:]
	}
	set := make(map[string]bool, len(recent))
	for _, id := range recent {
		set[id] = true
	}
	return set
}

// #endregion

// #region gather

// gather collects and scores candidates for one chunk of weak outcomes.
// allWeak feeds the multi-coverage bonus across the full weak set.
func (r *Recommender) gather(ctx context.Context, allWeak []mastery.WeakOutcome, chunk []mastery.WeakOutcome, act action.Action, moduleIndex int, recent map[string]bool) ([]Candidate, error) {
	weakSet := make(map[string]float64, len(allWeak))
	for _, w := range allWeak {
		weakSet[w.OutcomeID] = w.Mastery
	}

	wantKind := action.CategoryOf(act.Type)
	seen := make(map[string]bool)
	var out []Candidate

	for _, w := range chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, err := r.catalog.ForOutcome(ctx, w.OutcomeID)
		if err != nil {
			return nil, fmt.Errorf("catalog lookup %s: %w", w.OutcomeID, err)
		}
		for _, item := range items {
			if item.Kind != wantKind {
				continue
			}
			if recent[item.ID] {
				continue
			}
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			out = append(out, Candidate{
				Activity:      item,
				TargetOutcome: w.OutcomeID,
				Priority:      r.priority(item, w, moduleIndex, weakSet),
			})
		}
	}
	return out, nil
}

// #endregion

// #region priority

// priority scores one candidate: weakness weight, difficulty match by mastery
// band, module proximity, and multi-coverage of other weak outcomes.
func (r *Recommender) priority(item Activity, target mastery.WeakOutcome, moduleIndex int, weakSet map[string]float64) float64 {
	score := (1 - target.Mastery) * r.cfg.WeaknessScale

	score += difficultyBandBonus(target.Mastery, item.Difficulty)

	switch distance(item.ModuleIndex, moduleIndex) {
	case 0:
		score += r.cfg.SameModuleBonus
	case 1:
		score += r.cfg.AdjacentModule
	}

	covered := 0
	for _, o := range item.Outcomes {
		if o == target.OutcomeID {
			continue
		}
		if _, ok := weakSet[o]; ok {
			covered++
		}
	}
	score += float64(covered) * r.cfg.MultiCoverageBonus

	return score
}

// difficultyBandBonus: a very weak outcome favors easy content, a weak one
// favors medium; hard content is penalized in both bands.
func difficultyBandBonus(m float64, d action.Difficulty) float64 {
	if m < 0.3 {
		switch d {
		case action.DifficultyEasy:
			return 1.5
		case action.DifficultyMedium:
			return 0.5
		default:
			return -1.0
		}
	}
	switch d {
	case action.DifficultyMedium:
		return 1.5
	case action.DifficultyEasy:
		return 0.5
	default:
		return -0.5
	}
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// #endregion

// #region fallback

// fallback derives the deterministic default item from the module index and
// action type. It always resolves to a valid activity.
func (r *Recommender) fallback(act action.Action, moduleIndex int, tier cohort.Tier) Recommendation {
	item := DefaultActivity(moduleIndex, act.Type)
	return Recommendation{
		Activity:      item,
		TargetOutcome: "",
		Explanation: fmt.Sprintf("A %s %s task for module %d to keep momentum while fresh telemetry accrues.",
			item.Difficulty, act.Type, moduleIndex),
		Fallback: true,
	}
}

// DefaultActivity is the stable default-item formula.
func DefaultActivity(moduleIndex int, t action.Type) Activity {
	return Activity{
		ID:          fmt.Sprintf("default-m%02d-%s", moduleIndex, t),
		Name:        fmt.Sprintf("Module %d %s", moduleIndex, t),
		ModuleIndex: moduleIndex,
		Difficulty:  action.DifficultyOf(t),
		Kind:        action.CategoryOf(t),
	}
}

// #endregion
