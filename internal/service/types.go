package service

import (
	"time"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/recommend"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/reward"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/state"
)

// #region config

// Config tunes the serving boundary. Zero values fall back to the defaults.
type Config struct {
	// TopK is the default number of scored actions per response.
	TopK int

	// QueueSize bounds the async update/decision queue. A full queue rejects
	// further updates instead of blocking the caller.
	QueueSize int

	// SnapshotEvery triggers a table snapshot after that many applied updates.
	// 0 disables the count trigger.
	SnapshotEvery int

	// SnapshotInterval triggers a periodic table snapshot. 0 disables the
	// timer.
	SnapshotInterval time.Duration

	// RecencyDepth bounds the per-learner recent-activity ring.
	RecencyDepth int
}

// DefaultConfig returns the serving defaults.
func DefaultConfig() Config {
	return Config{
		TopK:             5,
		QueueSize:        256,
		SnapshotEvery:    500,
		SnapshotInterval: 5 * time.Minute,
		RecencyDepth:     10,
	}
}

// #endregion

// #region requests

// RecommendRequest asks for the next actions for a learner. Exactly one of
// State and Telemetry must be set; Telemetry goes through the state builder
// first.
type RecommendRequest struct {
	LearnerID string

	State     *state.State
	Telemetry *state.BuildInput

	// TopK overrides Config.TopK when positive.
	TopK int

	// ExcludedActionIDs removes exhausted actions from the candidate set.
	ExcludedActionIDs []int
}

// RecommendedAction pairs one scored abstract action with its concrete
// content item.
type RecommendedAction struct {
	ActionID int
	Action   action.Action
	Value    float64
	Activity recommend.Recommendation
}

// RecommendResponse is the served ranking. ColdStart marks a never-visited
// state whose values are the uniform zero fallback.
type RecommendResponse struct {
	RecID     string
	StateKey  string
	ColdStart bool
	Actions   []RecommendedAction
}

// UpdateRequest reports an observed outcome back into the learning loop. It
// is acknowledged immediately and applied asynchronously.
type UpdateRequest struct {
	LearnerID string

	State    state.State
	ActionID int
	Outcome  reward.Outcome
	Next     state.State
	Terminal bool

	PrevScore float64
	Stuck     bool

	// PrevActionType and ConsecutiveSameType may be left zero; the service
	// then fills them from its per-learner action ring.
	PrevActionType      action.Type
	ConsecutiveSameType int

	// MasteryTargets carries observed per-outcome targets for the EMA tracker.
	MasteryTargets map[string]float64
}

// #endregion
