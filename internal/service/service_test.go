package service

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/agent"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/cohort"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/mastery"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/recommend"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/reward"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/state"
)

// stubCatalog serves a fixed activity list for every outcome.
type stubCatalog struct {
	items []recommend.Activity
}

func (c *stubCatalog) ForOutcome(ctx context.Context, outcomeID string) ([]recommend.Activity, error) {
	return c.items, nil
}

func testService(t *testing.T, snapshots *agent.SnapshotStore) *Service {
	t.Helper()
	profiles := cohort.DefaultProfiles()
	space := action.NewSpace()
	builder := state.NewBuilder(builderConfig())
	ag := agent.New(space, profiles, agent.DefaultHyperparameters(), 7)
	tracker, err := mastery.NewTracker(map[string]float64{"lo-1": 1.0}, 100, profiles, nil)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	rec := recommend.New(&stubCatalog{}, tracker, profiles, recommend.DefaultConfig())

	svc := New(Deps{
		Builder:     builder,
		Space:       space,
		Agent:       ag,
		Tracker:     tracker,
		Recommender: rec,
		Snapshots:   snapshots,
	}, profiles, Config{SnapshotEvery: 0, SnapshotInterval: 0})
	t.Cleanup(svc.Close)
	return svc
}

func builderConfig() state.BuilderConfig {
	cfg := state.DefaultBuilderConfig()
	cfg.ModuleIndex = map[string]int{"mod-intro": 0, "mod-loops": 1, "mod-funcs": 2}
	return cfg
}

func sampleState(module int) state.State {
	return state.State{
		CohortID: 0, ModuleIndex: module, ProgressBin: 2, ScoreBin: 2,
		Phase: state.PhaseActive, Engagement: state.EngagementMedium,
	}
}

func TestRecommendFromTelemetry(t *testing.T) {
	svc := testService(t, nil)

	resp, err := svc.Recommend(context.Background(), RecommendRequest{
		LearnerID: "alice",
		Telemetry: &state.BuildInput{
			RawCohortID: 0, ModuleID: "mod-loops",
			Progress: 0.5, Score: 0.4,
		},
	})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if !resp.ColdStart {
		t.Error("fresh table must report cold start")
	}
	if len(resp.Actions) != 5 {
		t.Fatalf("expected default top 5, got %d", len(resp.Actions))
	}
	if resp.RecID == "" || resp.StateKey == "" {
		t.Fatal("response missing identifiers")
	}
	for _, a := range resp.Actions {
		if a.Activity.Activity.ID == "" {
			t.Fatalf("action %d not mapped to an activity", a.ActionID)
		}
	}
	for i := 1; i < len(resp.Actions); i++ {
		if resp.Actions[i].Value > resp.Actions[i-1].Value {
			t.Fatal("actions not sorted descending by value")
		}
	}
}

func TestRecommendRejectsInvalidCohort(t *testing.T) {
	svc := testService(t, nil)

	_, err := svc.Recommend(context.Background(), RecommendRequest{
		LearnerID: "bob",
		Telemetry: &state.BuildInput{RawCohortID: 99, ModuleID: "mod-intro"},
	})
	var verr *state.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRecommendAllExcludedFails(t *testing.T) {
	svc := testService(t, nil)
	st := sampleState(0)

	excluded := make([]int, svc.deps.Space.Len())
	for i := range excluded {
		excluded[i] = i
	}
	_, err := svc.Recommend(context.Background(), RecommendRequest{
		LearnerID: "carol", State: &st, ExcludedActionIDs: excluded,
	})
	if err == nil {
		t.Fatal("expected error when every action is excluded")
	}
}

func TestUpdateAppliedAsynchronously(t *testing.T) {
	svc := testService(t, nil)
	st := sampleState(1)

	err := svc.Update(UpdateRequest{
		LearnerID: "dave",
		State:     st,
		ActionID:  4,
		Outcome:   reward.Outcome{Completed: true, Score: 0.6, Success: true},
		Next:      sampleState(2),
		Terminal:  true,
		PrevScore: 0.5,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	svc.Flush()

	if got := svc.Applied(); got != 1 {
		t.Fatalf("expected 1 applied update, got %d", got)
	}
	if _, ok := svc.deps.Agent.Table().Get(st.Key(), 4); !ok {
		t.Fatal("table cell untouched after flush")
	}
}

func TestUpdateFeedsMastery(t *testing.T) {
	svc := testService(t, nil)
	st := sampleState(0)

	err := svc.Update(UpdateRequest{
		LearnerID:      "erin",
		State:          st,
		ActionID:       0,
		Outcome:        reward.Outcome{Completed: true, Score: 0.75, Success: true},
		Terminal:       true,
		MasteryTargets: map[string]float64{"lo-1": 0.75},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	svc.Flush()

	// Cohort 0 is the weak tier: 0.4 + 0.3×(0.75−0.4) = 0.505.
	got := svc.deps.Tracker.Mastery("erin", "lo-1")
	if math.Abs(got-0.505) > 1e-9 {
		t.Fatalf("expected mastery 0.505, got %f", got)
	}
}

func TestRepetitionRunTracking(t *testing.T) {
	svc := testService(t, nil)

	prev, run := svc.trackRun("frank", action.TypeAttemptQuiz)
	if prev != "" || run != 1 {
		t.Fatalf("first action: prev=%q run=%d", prev, run)
	}
	prev, run = svc.trackRun("frank", action.TypeAttemptQuiz)
	if prev != action.TypeAttemptQuiz || run != 2 {
		t.Fatalf("second action: prev=%q run=%d", prev, run)
	}
	_, run = svc.trackRun("frank", action.TypeViewContent)
	if run != 1 {
		t.Fatalf("type switch should reset the run, got %d", run)
	}
}

func TestKillSwitchFreezesTable(t *testing.T) {
	t.Setenv("RECOMMENDER_LEARNING", "false")
	svc := testService(t, nil)

	if svc.Learning() {
		t.Fatal("kill switch not honored")
	}
	if err := svc.Update(UpdateRequest{LearnerID: "gina", State: sampleState(0), ActionID: 1, Terminal: true}); err != nil {
		t.Fatalf("frozen Update must still acknowledge: %v", err)
	}
	svc.Flush()
	if got := svc.Applied(); got != 0 {
		t.Fatalf("frozen service applied %d updates", got)
	}
}

func TestCountTriggeredSnapshot(t *testing.T) {
	store, err := agent.NewSnapshotStore(filepath.Join(t.TempDir(), "q.db"))
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	defer store.Close()

	svc := testService(t, store)
	svc.cfg.SnapshotEvery = 2

	st := sampleState(0)
	for i := 0; i < 2; i++ {
		if err := svc.Update(UpdateRequest{
			LearnerID: "hana", State: st, ActionID: i,
			Outcome: reward.Outcome{Completed: true}, Terminal: true,
		}); err != nil {
			t.Fatalf("Update %d: %v", i, err)
		}
	}
	svc.Flush()

	infos, err := store.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) == 0 {
		t.Fatal("count trigger produced no snapshot")
	}
}

func TestRestoreFromSnapshot(t *testing.T) {
	store, err := agent.NewSnapshotStore(filepath.Join(t.TempDir(), "q.db"))
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	defer store.Close()

	st := sampleState(1)
	seed := agent.New(action.NewSpace(), cohort.DefaultProfiles(), agent.DefaultHyperparameters(), 1)
	seed.Table().Set(st.Key(), 3, 0.9)
	if _, err := store.Save(seed.Export()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	svc := testService(t, store)
	resp, err := svc.Recommend(context.Background(), RecommendRequest{LearnerID: "ivan", State: &st})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if resp.ColdStart {
		t.Fatal("restored state should not report cold start")
	}
	if resp.Actions[0].ActionID != 3 || resp.Actions[0].Value != 0.9 {
		t.Fatalf("restored value not served: %+v", resp.Actions[0])
	}
}

func TestRecencyRingBounded(t *testing.T) {
	svc := testService(t, nil)
	svc.cfg.RecencyDepth = 3

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		svc.remember("jo", id)
	}
	got := svc.recent("jo")
	if len(got) != 3 {
		t.Fatalf("ring not bounded: %v", got)
	}
	if got[0] != "c" || got[2] != "e" {
		t.Fatalf("ring must keep the newest entries: %v", got)
	}
}
