package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/agent"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/content"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/recommend"
)

var seedDB string

var seedCmd = &cobra.Command{
	Use:   "seed <activities.yaml>",
	Short: "Load course activities into the content catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedDB, "db", "recommender.db", "database path")
}

// #region activities-file

type activityEntry struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	ModuleIndex int      `yaml:"module_index"`
	Difficulty  string   `yaml:"difficulty"`
	Kind        string   `yaml:"kind"`
	Outcomes    []string `yaml:"outcomes"`
}

type activitiesFile struct {
	Activities []activityEntry `yaml:"activities"`
}

func (e activityEntry) toActivity() (recommend.Activity, error) {
	switch action.Difficulty(e.Difficulty) {
	case action.DifficultyEasy, action.DifficultyMedium, action.DifficultyHard:
	default:
		return recommend.Activity{}, fmt.Errorf("activity %s: unknown difficulty %q", e.ID, e.Difficulty)
	}
	switch action.Category(e.Kind) {
	case action.CategoryPre, action.CategoryActive, action.CategoryReflective:
	default:
		return recommend.Activity{}, fmt.Errorf("activity %s: unknown kind %q", e.ID, e.Kind)
	}
	return recommend.Activity{
		ID:          e.ID,
		Name:        e.Name,
		ModuleIndex: e.ModuleIndex,
		Difficulty:  action.Difficulty(e.Difficulty),
		Kind:        action.Category(e.Kind),
		Outcomes:    e.Outcomes,
	}, nil
}

// #endregion activities-file

// #region seed

func runSeed(cobraCmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read activities file: %w", err)
	}
	var f activitiesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse activities file: %w", err)
	}
	if len(f.Activities) == 0 {
		return fmt.Errorf("%s lists no activities", args[0])
	}

	store, err := agent.NewSnapshotStore(seedDB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	catalog, err := content.NewSQLCatalog(store.DB())
	if err != nil {
		return err
	}

	ctx := context.Background()
	for _, entry := range f.Activities {
		a, err := entry.toActivity()
		if err != nil {
			return err
		}
		if err := catalog.Put(ctx, a); err != nil {
			return err
		}
	}

	n, err := catalog.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d activities (%d total in catalog)\n", len(f.Activities), n)
	return nil
}

// #endregion seed
