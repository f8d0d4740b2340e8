package replay

import (
	"fmt"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/agent"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/cohort"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/mastery"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/reward"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/state"
)

// #region types

// Harness replays fixtures through a live agent. The tracker is optional;
// when nil, mastery targets in the fixture are ignored.
type Harness struct {
	agent    *agent.Agent
	space    *action.Space
	profiles *cohort.Profiles
	tracker  *mastery.Tracker
}

// NewHarness wires a training harness.
func NewHarness(a *agent.Agent, space *action.Space, profiles *cohort.Profiles, tracker *mastery.Tracker) *Harness {
	return &Harness{agent: a, space: space, profiles: profiles, tracker: tracker}
}

// Summary provides aggregate stats from one training run.
type Summary struct {
	Episodes     int
	Steps        int
	Replayed     int // steps using the recorded action
	Selected     int // steps where the agent picked epsilon-greedily
	TotalReward  float64
	FinalEpsilon float64
	States       int
}

// #endregion types

// #region train

// Train replays every episode of the fixture through the Bellman update,
// decaying epsilon once per episode. Operates entirely in-memory.
func (h *Harness) Train(f *Fixture) (Summary, error) {
	var s Summary
	for ei, ep := range f.Episodes {
		if err := h.trainEpisode(ep, &s); err != nil {
			return s, fmt.Errorf("episode %d (%s): %w", ei, ep.LearnerID, err)
		}
		h.agent.EndEpisode()
		s.Episodes++
	}
	s.FinalEpsilon = h.agent.Epsilon()
	s.States = h.agent.Table().States()
	return s, nil
}

func (h *Harness) trainEpisode(ep FixtureEpisode, s *Summary) error {
	var prevType action.Type
	run := 0

	for si, step := range ep.Steps {
		st, err := parseStateKey(step.StateKey)
		if err != nil {
			return fmt.Errorf("step %d state: %w", si, err)
		}

		terminal := step.NextKey == ""
		var next state.State
		if !terminal {
			if next, err = parseStateKey(step.NextKey); err != nil {
				return fmt.Errorf("step %d next state: %w", si, err)
			}
		}

		act, replayed, err := h.resolveAction(st, step.ActionID)
		if err != nil {
			return fmt.Errorf("step %d action: %w", si, err)
		}
		if replayed {
			s.Replayed++
		} else {
			s.Selected++
		}

		if act.Type == prevType {
			run++
		} else {
			run = 1
		}

		tier := h.profiles.TierOf(st.CohortID)
		breakdown := reward.Calculate(reward.Input{
			Tier:                tier,
			Coeffs:              h.profiles.Coefficients(tier),
			State:               st,
			Action:              act,
			Outcome:             step.Outcome.ToOutcome(),
			PrevScore:           step.PrevScore,
			PrevActionType:      prevType,
			ConsecutiveSameType: run,
			Stuck:               step.Stuck,
		})
		total := breakdown.Total()

		h.agent.Update(agent.Transition{
			State:    st,
			ActionID: act.ID,
			Reward:   total,
			Next:     next,
			Terminal: terminal,
			Tier:     tier,
		})
		s.Steps++
		s.TotalReward += total

		if h.tracker != nil {
			for outcomeID, target := range step.MasteryTargets {
				if _, err := h.tracker.Update(ep.LearnerID, tier, outcomeID, target); err != nil {
					return fmt.Errorf("step %d mastery %s: %w", si, outcomeID, err)
				}
			}
		}

		prevType = act.Type
	}
	return nil
}

// resolveAction replays the recorded action id, or lets the agent choose when
// the fixture carries -1. The second return reports which path was taken.
func (h *Harness) resolveAction(st state.State, actionID int) (action.Action, bool, error) {
	if actionID >= 0 {
		act, err := h.space.ByID(actionID)
		if err != nil {
			return action.Action{}, false, err
		}
		return act, true, nil
	}
	act, err := h.agent.SelectAction(st, h.space.All(), h.agent.Epsilon())
	if err != nil {
		return action.Action{}, false, err
	}
	return act, false, nil
}

// parseStateKey accepts canonical keys and migrates historical 6-field keys.
func parseStateKey(key string) (state.State, error) {
	migrated, err := state.MigrateKey(key)
	if err != nil {
		return state.State{}, err
	}
	return state.ParseKey(migrated)
}

// #endregion train
