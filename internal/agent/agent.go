package agent

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/cohort"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/state"
)

// #region hyperparameters

// Hyperparameters tune the Q-learning agent. Serialized with the table so a
// loaded snapshot trains onward with the same settings.
type Hyperparameters struct {
	Gamma          float64 `json:"gamma"`
	EpsilonStart   float64 `json:"epsilon_start"`
	EpsilonDecay   float64 `json:"epsilon_decay"`
	EpsilonMin     float64 `json:"epsilon_min"`
	ServingEpsilon float64 `json:"serving_epsilon"`
}

// DefaultHyperparameters returns the standard training settings. Serving is
// fully greedy.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		Gamma:          0.9,
		EpsilonStart:   1.0,
		EpsilonDecay:   0.995,
		EpsilonMin:     0.05,
		ServingEpsilon: 0,
	}
}

// Counters track training progress, serialized alongside the table.
type Counters struct {
	Episodes int64 `json:"episodes"`
	Updates  int64 `json:"updates"`
}

// #endregion

// #region transition

// Transition is one (s, a, r, s') step. Consumed immediately by Update and
// not retained.
type Transition struct {
	State    state.State
	ActionID int
	Reward   float64
	Next     state.State
	Terminal bool
	Tier     cohort.Tier
}

// #endregion

// #region agent

// Agent owns the sparse value table. All mutation goes through Update.
type Agent struct {
	table    *Table
	space    *action.Space
	profiles *cohort.Profiles
	hp       Hyperparameters

	mu       sync.Mutex // guards profiles, counters, epsilon, rng
	counters Counters
	epsilon  float64
	rng      *rand.Rand
}

// New creates an agent with an empty table. The seed fixes the exploration
// stream for reproducible training runs.
func New(space *action.Space, profiles *cohort.Profiles, hp Hyperparameters, seed int64) *Agent {
	return &Agent{
		table:    NewTable(),
		space:    space,
		profiles: profiles,
		hp:       hp,
		epsilon:  hp.EpsilonStart,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Table exposes the value table for snapshotting.
func (a *Agent) Table() *Table {
	return a.table
}

// Hyperparameters returns the agent's settings.
func (a *Agent) Hyperparameters() Hyperparameters {
	return a.hp
}

// SetProfiles swaps the coefficient tables, e.g. after a config reload.
func (a *Agent) SetProfiles(p *cohort.Profiles) {
	a.mu.Lock()
	a.profiles = p
	a.mu.Unlock()
}

// Counters returns a copy of the training counters.
func (a *Agent) Counters() Counters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters
}

// #endregion

// #region update

// Update applies the one-step Q-learning rule
// Q(s,a) ← Q(s,a) + α·[r + γ·maxₐ′Q(s′,a′) − Q(s,a)] and returns the new
// cell value. Terminal transitions use maxₐ′ = 0.
func (a *Agent) Update(t Transition) float64 {
	var maxNext float64
	if !t.Terminal {
		maxNext = a.maxValue(t.Next.Key())
	}

	a.mu.Lock()
	alpha := a.profiles.QLearningRate(t.Tier)
	a.mu.Unlock()
	gamma := a.hp.Gamma

	next := a.table.Apply(t.State.Key(), t.ActionID, func(old float64) float64 {
		return old + alpha*(t.Reward+gamma*maxNext-old)
	})

	a.mu.Lock()
	a.counters.Updates++
	a.mu.Unlock()

	return next
}

// maxValue is maxₐ′ over the catalog for a state. Unseen cells are 0, so the
// implicit baseline is 0 unless every action is stored.
func (a *Agent) maxValue(stateKey string) float64 {
	stored := a.table.StateValues(stateKey)
	if len(stored) == 0 {
		return 0
	}
	var best float64
	first := true
	if len(stored) < a.space.Len() {
		best = 0 // at least one unseen action remains
		first = false
	}
	for _, v := range stored {
		if first || v > best {
			best = v
			first = false
		}
	}
	return best
}

// #endregion

// #region selection

// SelectAction picks an action epsilon-greedily from the available set.
// Exploitation breaks ties by lowest action id, so with ε=0 selection is a
// pure function of the state and table contents.
func (a *Agent) SelectAction(st state.State, available []action.Action, epsilon float64) (action.Action, error) {
	if len(available) == 0 {
		return action.Action{}, fmt.Errorf("no available actions for state %s", st.Key())
	}

	if epsilon > 0 {
		a.mu.Lock()
		explore := a.rng.Float64() < epsilon
		var pick int
		if explore {
			pick = a.rng.Intn(len(available))
		}
		a.mu.Unlock()
		if explore {
			return available[pick], nil
		}
	}

	values := a.table.StateValues(st.Key())
	best := available[0]
	bestV := values[best.ID]
	for _, act := range available[1:] {
		if v := values[act.ID]; v > bestV {
			best = act
			bestV = v
		}
	}
	return best, nil
}

// #endregion

// #region recommend

// Scored pairs an action id with its table value.
type Scored struct {
	ActionID int
	Value    float64
}

// Recommend returns the top-k (action, value) pairs descending by value, ties
// broken by lowest id. The second return is false when the state has never
// been visited; values are then the uniform zero fallback and the caller may
// surface a cold-start marker.
func (a *Agent) Recommend(st state.State, available []action.Action, k int) ([]Scored, bool) {
	values := a.table.StateValues(st.Key())
	visited := len(values) > 0

	scored := make([]Scored, 0, len(available))
	for _, act := range available {
		scored = append(scored, Scored{ActionID: act.ID, Value: values[act.ID]})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Value != scored[j].Value {
			return scored[i].Value > scored[j].Value
		}
		return scored[i].ActionID < scored[j].ActionID
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, visited
}

// #endregion

// #region episodes

// EndEpisode decays epsilon toward its floor and bumps the episode counter.
func (a *Agent) EndEpisode() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters.Episodes++
	a.epsilon *= a.hp.EpsilonDecay
	if a.epsilon < a.hp.EpsilonMin {
		a.epsilon = a.hp.EpsilonMin
	}
}

// Epsilon returns the current training epsilon.
func (a *Agent) Epsilon() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epsilon
}

// #endregion

// #region artifact

// Artifact is the serialized unit: table, hyperparameters, and counters,
// tagged with the state-tuple arity it was written under.
type Artifact struct {
	StateArity      int                        `json:"state_arity"`
	Hyperparameters Hyperparameters            `json:"hyperparameters"`
	Counters        Counters                   `json:"counters"`
	Table           map[string]map[int]float64 `json:"table"`
}

// Export snapshots the agent into an artifact.
func (a *Agent) Export() Artifact {
	a.mu.Lock()
	counters := a.counters
	a.mu.Unlock()
	return Artifact{
		StateArity:      state.Arity,
		Hyperparameters: a.hp,
		Counters:        counters,
		Table:           a.table.Snapshot(),
	}
}

// Import replaces the agent's table, hyperparameters, and counters from an
// artifact. Refuses an arity mismatch rather than misinterpreting keys.
func (a *Agent) Import(art Artifact) error {
	if art.StateArity != state.Arity {
		return fmt.Errorf("artifact state arity %d does not match running arity %d",
			art.StateArity, state.Arity)
	}
	a.table.Restore(art.Table)
	a.mu.Lock()
	a.hp = art.Hyperparameters
	a.counters = art.Counters
	a.epsilon = art.Hyperparameters.EpsilonStart
	a.mu.Unlock()
	return nil
}

// #endregion
