package state

import (
	"errors"
	"testing"
	"time"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
)

func testBuilder() *Builder {
	cfg := DefaultBuilderConfig()
	cfg.ExcludedCohorts = map[int]bool{9: true}
	cfg.CohortRemap = map[int]int{4: 0, 7: 1, 11: 2}
	cfg.ModuleIndex = map[string]int{"mod-a": 0, "mod-b": 1, "mod-c": 2}
	return NewBuilder(cfg)
}

func historyAt(base time.Time, gap time.Duration, types ...action.Type) []HistoryEntry {
	out := make([]HistoryEntry, len(types))
	for i, t := range types {
		out[i] = HistoryEntry{Type: t, Timestamp: base.Add(time.Duration(i) * gap)}
	}
	return out
}

func TestBuildIdempotent(t *testing.T) {
	b := testBuilder()
	in := BuildInput{
		RawCohortID: 7,
		ModuleID:    "mod-b",
		Progress:    0.42,
		Score:       0.81,
		History: historyAt(time.Unix(1000, 0), 2*time.Minute,
			action.TypeViewContent, action.TypeAttemptQuiz, action.TypeAttemptQuiz),
		TimeOnTask:   600,
		ExpectedTime: 900,
		Stuck:        true,
	}

	s1, err := b.Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s2, err := b.Build(in)
	if err != nil {
		t.Fatalf("Build again: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("builder not idempotent: %+v vs %+v", s1, s2)
	}
	if s1.Key() != s2.Key() {
		t.Fatal("keys differ for identical telemetry")
	}
}

func TestCohortValidation(t *testing.T) {
	b := testBuilder()

	// Excluded cohort
	_, err := b.Build(BuildInput{RawCohortID: 9, ModuleID: "mod-a"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for excluded cohort, got %v", err)
	}

	// Unknown cohort
	_, err = b.Build(BuildInput{RawCohortID: 42, ModuleID: "mod-a"})
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown cohort, got %v", err)
	}
	if ve.Field != "cohort_id" {
		t.Fatalf("expected cohort_id field, got %s", ve.Field)
	}

	// Unknown module
	_, err = b.Build(BuildInput{RawCohortID: 4, ModuleID: "mod-z"})
	if !errors.As(err, &ve) || ve.Field != "module_id" {
		t.Fatalf("expected module_id ValidationError, got %v", err)
	}
}

func TestCohortRemap(t *testing.T) {
	b := testBuilder()
	s, err := b.Build(BuildInput{RawCohortID: 11, ModuleID: "mod-c"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s.CohortID != 2 {
		t.Fatalf("raw cohort 11 should remap to 2, got %d", s.CohortID)
	}
	if s.ModuleIndex != 2 {
		t.Fatalf("mod-c should map to index 2, got %d", s.ModuleIndex)
	}
}

func TestQuartileBin(t *testing.T) {
	cases := []struct {
		v    float64
		want int
	}{
		{-0.5, 1}, {0, 1}, {0.25, 1}, {0.2500001, 2},
		{0.5, 2}, {0.51, 3}, {0.75, 3}, {0.76, 4}, {1.0, 4}, {1.7, 4},
	}
	for _, c := range cases {
		if got := QuartileBin(c.v); got != c.want {
			t.Fatalf("QuartileBin(%f) = %d, want %d", c.v, got, c.want)
		}
	}
}

func TestPhaseMajority(t *testing.T) {
	b := testBuilder()
	base := time.Unix(1000, 0)

	// Strict reflective majority
	in := BuildInput{
		RawCohortID: 4, ModuleID: "mod-a", Progress: 0.2,
		History: historyAt(base, time.Minute,
			action.TypeReviewQuiz, action.TypePostForum, action.TypeAttemptQuiz),
	}
	s, _ := b.Build(in)
	if s.Phase != PhaseReflective {
		t.Fatalf("expected reflective majority, got %s", s.Phase)
	}

	// Tie between pre and active prefers active
	in.History = historyAt(base, time.Minute,
		action.TypeViewContent, action.TypeAttemptQuiz)
	s, _ = b.Build(in)
	if s.Phase != PhaseActive {
		t.Fatalf("tie should prefer active, got %s", s.Phase)
	}

	// Tie between pre and reflective: reflective only when progress ≥ 0.6
	in.History = historyAt(base, time.Minute,
		action.TypeViewContent, action.TypeReviewQuiz)
	in.Progress = 0.7
	s, _ = b.Build(in)
	if s.Phase != PhaseReflective {
		t.Fatalf("pre/reflective tie with high progress should be reflective, got %s", s.Phase)
	}
	in.Progress = 0.4
	s, _ = b.Build(in)
	if s.Phase != PhaseActive {
		t.Fatalf("pre/reflective tie with mid progress falls back to heuristic, got %s", s.Phase)
	}
}

func TestPhaseEmptyWindowFallsBackToProgress(t *testing.T) {
	b := testBuilder()
	for _, c := range []struct {
		progress float64
		want     Phase
	}{
		{0.1, PhasePre},
		{0.45, PhaseActive},
		{0.8, PhaseReflective},
	} {
		s, err := b.Build(BuildInput{RawCohortID: 4, ModuleID: "mod-a", Progress: c.progress})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if s.Phase != c.want {
			t.Fatalf("progress %.2f: expected %s, got %s", c.progress, c.want, s.Phase)
		}
	}
}

func TestEngagementBuckets(t *testing.T) {
	b := testBuilder()
	base := time.Unix(1000, 0)

	// Single weak action, no bonuses → low
	s, _ := b.Build(BuildInput{
		RawCohortID: 4, ModuleID: "mod-a",
		History: historyAt(base, time.Minute, action.TypeViewContent),
	})
	if s.Engagement != EngagementLow {
		t.Fatalf("expected low engagement, got %s", s.Engagement)
	}

	// Dense high-quality window with consistent 2-minute gaps and full
	// time-on-task: 6×1.0-ish weights + bonuses → high
	s, _ = b.Build(BuildInput{
		RawCohortID: 4, ModuleID: "mod-a",
		History: historyAt(base, 2*time.Minute,
			action.TypeSubmitQuiz, action.TypeSubmitQuiz, action.TypeSubmitAssignment,
			action.TypeAttemptQuiz, action.TypeSubmitQuiz, action.TypeSubmitAssignment),
		TimeOnTask:   1000,
		ExpectedTime: 900,
	})
	if s.Engagement != EngagementHigh {
		t.Fatalf("expected high engagement, got %s", s.Engagement)
	}
}

func TestEngagementConsistencyBonusBand(t *testing.T) {
	b := testBuilder()
	base := time.Unix(1000, 0)

	// Base quality 0.8+0.8+1.0 = 2.6 sits just under the medium threshold, so
	// the 0.5 consistency bonus is exactly what separates the two windows.
	// 2-second gaps fall outside the target band and earn nothing.
	inRushed := BuildInput{
		RawCohortID: 4, ModuleID: "mod-a",
		History: historyAt(base, 2*time.Second,
			action.TypeAttemptQuiz, action.TypeAttemptQuiz, action.TypeSubmitQuiz),
	}
	inSteady := inRushed
	inSteady.History = historyAt(base, time.Minute,
		action.TypeAttemptQuiz, action.TypeAttemptQuiz, action.TypeSubmitQuiz)

	rushed, _ := b.Build(inRushed)
	steady, _ := b.Build(inSteady)
	if rushed.Engagement != EngagementLow {
		t.Fatalf("rushed gaps should stay low, got %s", rushed.Engagement)
	}
	if steady.Engagement != EngagementMedium {
		t.Fatalf("steady gaps should earn the bonus and reach medium, got %s", steady.Engagement)
	}
}

func TestSpaceSizeWithoutEnumeration(t *testing.T) {
	b := testBuilder()
	// 3 cohorts × 3 modules × 4 × 4 × 3 × 3 × 2
	want := 3 * 3 * 4 * 4 * 3 * 3 * 2
	if got := b.SpaceSize(); got != want {
		t.Fatalf("SpaceSize = %d, want %d", got, want)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	s := State{CohortID: 2, ModuleIndex: 5, ProgressBin: 3, ScoreBin: 1,
		Phase: PhaseReflective, Engagement: EngagementHigh, Stuck: true}
	got, err := ParseKey(s.Key())
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if got != s {
		t.Fatalf("round trip mismatch: %+v != %+v", got, s)
	}
}

func TestMigrateKey(t *testing.T) {
	v1 := "1|3|2|2|0|1"
	migrated, err := MigrateKey(v1)
	if err != nil {
		t.Fatalf("MigrateKey: %v", err)
	}
	if migrated != "1|3|2|2|0|1|0" {
		t.Fatalf("unexpected migration result %q", migrated)
	}

	v2 := "1|3|2|2|0|1|1"
	same, err := MigrateKey(v2)
	if err != nil || same != v2 {
		t.Fatalf("v2 key should pass through, got %q err %v", same, err)
	}

	if _, err := MigrateKey("1|2|3"); err == nil {
		t.Fatal("expected error for malformed key")
	}
}
