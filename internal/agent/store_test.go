package agent

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/cohort"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/state"
)

func tempStore(t *testing.T) *SnapshotStore {
	t.Helper()
	s, err := NewSnapshotStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := tempStore(t)
	a := testAgent()

	s := testState(0)
	next := testState(1)
	for i := 0; i < 50; i++ {
		a.Update(Transition{State: s, ActionID: i % a.space.Len(), Reward: float64(i%5) - 2, Next: next, Tier: cohort.TierMedium})
	}
	a.EndEpisode()

	art := a.Export()
	if art.StateArity != state.Arity {
		t.Fatalf("artifact arity: got %d", art.StateArity)
	}

	id, err := store.Save(art)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty snapshot id")
	}

	loaded, err := store.LoadActive()
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}

	b := New(action.NewSpace(), cohort.DefaultProfiles(), DefaultHyperparameters(), 1)
	if err := b.Import(loaded); err != nil {
		t.Fatalf("Import: %v", err)
	}

	// Identical values within floating tolerance.
	for key, row := range art.Table {
		for actID, v := range row {
			got, ok := b.Table().Get(key, actID)
			if !ok {
				t.Fatalf("cell %s/%d missing after round trip", key, actID)
			}
			if math.Abs(got-v) > 1e-12 {
				t.Fatalf("cell %s/%d: %f != %f", key, actID, got, v)
			}
		}
	}
	if b.Hyperparameters() != a.Hyperparameters() {
		t.Fatal("hyperparameters changed across round trip")
	}
	if b.Counters() != a.Counters() {
		t.Fatal("counters changed across round trip")
	}
}

func TestImportRefusesArityMismatch(t *testing.T) {
	a := testAgent()
	art := a.Export()
	art.StateArity = 6
	if err := a.Import(art); err == nil {
		t.Fatal("expected arity mismatch error")
	}
}

func TestLoadActiveColdStart(t *testing.T) {
	store := tempStore(t)
	_, err := store.LoadActive()
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestLoadCorruptArtifact(t *testing.T) {
	store := tempStore(t)
	a := testAgent()
	id, err := store.Save(a.Export())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Corrupt the stored JSON in place.
	if _, err := store.DB().Exec(
		`UPDATE q_snapshots SET artifact_json = 'not json' WHERE snapshot_id = ?`, id,
	); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	if _, err := store.LoadActive(); err == nil {
		t.Fatal("expected parse error for corrupt artifact")
	}
}

func TestListSnapshots(t *testing.T) {
	store := tempStore(t)
	a := testAgent()
	a.Table().Set(testState(0).Key(), 1, 0.5)

	if _, err := store.Save(a.Export()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Save(a.Export()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	infos, err := store.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(infos))
	}
	if infos[0].States != 1 || infos[0].StateArity != state.Arity {
		t.Fatalf("unexpected snapshot info %+v", infos[0])
	}
}
