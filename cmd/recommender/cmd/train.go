package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/agent"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/cohort"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/mastery"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/replay"
)

var (
	trainDB       string
	trainProfiles string
	trainSeed     int64
)

var trainCmd = &cobra.Command{
	Use:   "train <fixture.json> [fixture.json...]",
	Short: "Replay telemetry fixtures through the value table",
	Long: `Loads the active snapshot (if any), trains on each fixture in order with
epsilon decay, and saves a new snapshot.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&trainDB, "db", "recommender.db", "snapshot database path")
	trainCmd.Flags().StringVar(&trainProfiles, "profiles", "", "cohort profiles YAML (default built-in)")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 0, "exploration seed (0 = time-based)")
}

func runTrain(cobraCmd *cobra.Command, args []string) error {
	profiles := cohort.DefaultProfiles()
	if trainProfiles != "" {
		loaded, err := cohort.LoadFile(trainProfiles)
		if err != nil {
			return fmt.Errorf("load profiles: %w", err)
		}
		profiles = loaded
	}

	seed := trainSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	store, err := agent.NewSnapshotStore(trainDB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	masteryStore, err := mastery.NewStore(store.DB())
	if err != nil {
		return err
	}
	tracker, err := mastery.NewTracker(map[string]float64{}, 100, profiles, masteryStore)
	if err != nil {
		return err
	}

	space := action.NewSpace()
	ag := agent.New(space, profiles, agent.DefaultHyperparameters(), seed)

	art, err := store.LoadActive()
	switch {
	case err == nil:
		if err := ag.Import(art); err != nil {
			return fmt.Errorf("resume from snapshot: %w", err)
		}
		log.Printf("[TRAIN] resumed: %d states, %d updates", len(art.Table), art.Counters.Updates)
	case errors.Is(err, agent.ErrNoSnapshot):
		log.Printf("[TRAIN] no snapshot, starting from an empty table")
	default:
		return fmt.Errorf("load snapshot: %w", err)
	}

	h := replay.NewHarness(ag, space, profiles, tracker)
	for _, path := range args {
		f, err := replay.LoadFixture(path)
		if err != nil {
			return err
		}
		s, err := h.Train(f)
		if err != nil {
			return fmt.Errorf("train %s: %w", path, err)
		}
		fmt.Printf("%s: %d episodes, %d steps (%d replayed, %d selected), reward %.2f, epsilon %.4f\n",
			path, s.Episodes, s.Steps, s.Replayed, s.Selected, s.TotalReward, s.FinalEpsilon)
	}

	id, err := store.Save(ag.Export())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	fmt.Printf("snapshot %s: %d states\n", id, ag.Table().States())
	return nil
}
