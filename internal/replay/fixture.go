// Package replay trains the value table offline from recorded telemetry
// fixtures, episode by episode with epsilon decay.
package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/reward"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a recorded training run.
type Fixture struct {
	Description string           `json:"description"`
	Episodes    []FixtureEpisode `json:"episodes"`
}

// FixtureEpisode is one learner session. Steps replay in order; the last step
// of an episode is treated as terminal unless it names a next state.
type FixtureEpisode struct {
	LearnerID string        `json:"learner_id"`
	Steps     []FixtureStep `json:"steps"`
}

// FixtureStep is one recorded transition. States are carried as canonical key
// strings; historical 6-field keys are migrated on load. ActionID -1 lets the
// agent pick epsilon-greedily instead of replaying the recorded choice.
type FixtureStep struct {
	StateKey string `json:"state_key"`
	NextKey  string `json:"next_key,omitempty"`
	ActionID int    `json:"action_id"`

	Outcome   FixtureOutcome `json:"outcome"`
	PrevScore float64        `json:"prev_score"`
	Stuck     bool           `json:"stuck"`

	MasteryTargets map[string]float64 `json:"mastery_targets,omitempty"`
}

// FixtureOutcome mirrors reward.Outcome with JSON tags.
type FixtureOutcome struct {
	Completed    bool    `json:"completed"`
	Score        float64 `json:"score"`
	Success      bool    `json:"success"`
	TimeSpent    float64 `json:"time_spent"`
	ExpectedTime float64 `json:"expected_time"`
}

// ToOutcome converts to the domain type.
func (o FixtureOutcome) ToOutcome() reward.Outcome {
	return reward.Outcome{
		Completed:    o.Completed,
		Score:        o.Score,
		Success:      o.Success,
		TimeSpent:    o.TimeSpent,
		ExpectedTime: o.ExpectedTime,
	}
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.Episodes) == 0 {
		return nil, fmt.Errorf("fixture %s has no episodes", path)
	}
	return &f, nil
}

// #endregion fixture-loader
