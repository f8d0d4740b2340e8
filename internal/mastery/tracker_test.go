package mastery

import (
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/cohort"
	_ "modernc.org/sqlite"
)

var testWeights = map[string]float64{
	"lo-1": 0.4,
	"lo-2": 0.3,
	"lo-3": 0.2,
	"lo-4": 0.1,
}

func memTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := NewTracker(testWeights, 100, cohort.DefaultProfiles(), nil)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

func TestDefaultMastery(t *testing.T) {
	tr := memTracker(t)
	if got := tr.Mastery("alice", "lo-1"); got != 0.4 {
		t.Fatalf("unobserved mastery: got %f, want 0.4", got)
	}
}

func TestEMAUpdate(t *testing.T) {
	tr := memTracker(t)
	// Worked example: 0.4 + 0.2×(0.75 − 0.4) = 0.47 at the medium rate.
	got, err := tr.Update("alice", cohort.TierMedium, "lo-1", 0.75)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if math.Abs(got-0.47) > 1e-9 {
		t.Fatalf("EMA update: got %f, want 0.47", got)
	}
	if m := tr.Mastery("alice", "lo-1"); math.Abs(m-0.47) > 1e-9 {
		t.Fatalf("stored mastery: got %f", m)
	}
}

func TestUpdateClamps(t *testing.T) {
	tr := memTracker(t)
	m := 0.4
	for i := 0; i < 200; i++ {
		var err error
		m, err = tr.Update("bob", cohort.TierWeak, "lo-2", 1.0)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	if m < 0 || m > 1 {
		t.Fatalf("mastery escaped [0,1]: %f", m)
	}
}

func TestUpdateRejectsNonFinite(t *testing.T) {
	tr := memTracker(t)
	if _, err := tr.Update("bob", cohort.TierWeak, "lo-1", math.NaN()); err == nil {
		t.Fatal("expected error for NaN target")
	}
	if _, err := tr.Update("bob", cohort.TierWeak, "lo-1", math.Inf(1)); err == nil {
		t.Fatal("expected error for Inf target")
	}
}

func TestWeakOutcomesPriorityOrder(t *testing.T) {
	tr := memTracker(t)
	// Push lo-3 above the threshold, depress lo-2.
	for i := 0; i < 30; i++ {
		tr.Update("carol", cohort.TierWeak, "lo-3", 1.0)
	}
	for i := 0; i < 10; i++ {
		tr.Update("carol", cohort.TierWeak, "lo-2", 0.0)
	}

	weak := tr.WeakOutcomes("carol", WeakThreshold)
	if len(weak) != 3 {
		t.Fatalf("expected 3 weak outcomes, got %d", len(weak))
	}
	for _, w := range weak {
		if w.OutcomeID == "lo-3" {
			t.Fatal("lo-3 should have left the weak set")
		}
	}
	// Descending priority = (1−m)×weight.
	for i := 1; i < len(weak); i++ {
		if weak[i].Priority > weak[i-1].Priority {
			t.Fatalf("weak outcomes not sorted by priority at %d", i)
		}
	}
	// lo-1 (weight 0.4, mastery 0.4 → 0.24) outranks lo-4 (0.1 → 0.06).
	if weak[0].OutcomeID != "lo-2" && weak[0].OutcomeID != "lo-1" {
		t.Fatalf("unexpected top weak outcome %s", weak[0].OutcomeID)
	}
}

func TestProjectScore(t *testing.T) {
	tr := memTracker(t)
	p := tr.ProjectScore("dave")
	// Everything at default 0.4: current = 0.4 × 1.0 × 100 = 40.
	if math.Abs(p.Current-40) > 1e-9 {
		t.Fatalf("current projection: got %f, want 40", p.Current)
	}
	// All four outcomes weak → raised to 0.8: potential = 80.
	if math.Abs(p.Potential-80) > 1e-9 {
		t.Fatalf("potential projection: got %f, want 80", p.Potential)
	}
	if p.Potential < p.Current {
		t.Fatal("potential must not be below current")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "mastery.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tr, err := NewTracker(testWeights, 100, cohort.DefaultProfiles(), store)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	want, err := tr.Update("erin", cohort.TierStrong, "lo-1", 0.9)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Fresh tracker over the same db sees the persisted value.
	tr2, err := NewTracker(testWeights, 100, cohort.DefaultProfiles(), store)
	if err != nil {
		t.Fatalf("NewTracker reload: %v", err)
	}
	if got := tr2.Mastery("erin", "lo-1"); math.Abs(got-want) > 1e-9 {
		t.Fatalf("reloaded mastery: got %f, want %f", got, want)
	}
}
