package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/agent"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/cohort"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/content"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/logging"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/mastery"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/recommend"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/reward"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/service"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/state"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interactive serving loop",
	Long: `Starts the recommender over a SQLite database and reads commands from stdin.

Environment:
  RECOMMENDER_DB        database path (default recommender.db)
  RECOMMENDER_PROFILES  cohort profiles YAML, hot-reloaded (optional)
  RECOMMENDER_OUTCOMES  outcome weighting YAML (optional)
  RECOMMENDER_MODULES   comma-separated module ids in course order
  RECOMMENDER_LEARNING  set to false to serve a frozen table`,
	RunE: runServe,
}

// #region outcome-config

type outcomesFile struct {
	TotalMarks float64            `yaml:"total_marks"`
	Weights    map[string]float64 `yaml:"weights"`
}

func loadOutcomes(path string) (map[string]float64, float64, error) {
	if path == "" {
		return map[string]float64{}, 100, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read outcomes file: %w", err)
	}
	var f outcomesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, 0, fmt.Errorf("parse outcomes file: %w", err)
	}
	if f.TotalMarks <= 0 {
		f.TotalMarks = 100
	}
	return f.Weights, f.TotalMarks, nil
}

// #endregion outcome-config

// #region serve

func runServe(cobraCmd *cobra.Command, args []string) error {
	dbPath := envOr("RECOMMENDER_DB", "recommender.db")
	profilesPath := envOr("RECOMMENDER_PROFILES", "")
	outcomesPath := envOr("RECOMMENDER_OUTCOMES", "")
	modules := strings.Split(envOr("RECOMMENDER_MODULES", "module-0"), ",")

	profiles := cohort.DefaultProfiles()
	if profilesPath != "" {
		loaded, err := cohort.LoadFile(profilesPath)
		if err != nil {
			return fmt.Errorf("load profiles: %w", err)
		}
		profiles = loaded
	}

	snapshots, err := agent.NewSnapshotStore(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer snapshots.Close()
	db := snapshots.DB()

	masteryStore, err := mastery.NewStore(db)
	if err != nil {
		return err
	}
	weights, totalMarks, err := loadOutcomes(outcomesPath)
	if err != nil {
		return err
	}
	tracker, err := mastery.NewTracker(weights, totalMarks, profiles, masteryStore)
	if err != nil {
		return err
	}

	catalog, err := content.NewSQLCatalog(db)
	if err != nil {
		return err
	}
	decisions, err := logging.NewDecisionLog(db)
	if err != nil {
		return err
	}

	builderCfg := state.DefaultBuilderConfig()
	builderCfg.ModuleIndex = make(map[string]int, len(modules))
	for i, m := range modules {
		builderCfg.ModuleIndex[strings.TrimSpace(m)] = i
	}

	space := action.NewSpace()
	ag := agent.New(space, profiles, agent.DefaultHyperparameters(), time.Now().UnixNano())
	rec := recommend.New(catalog, tracker, profiles, recommend.DefaultConfig())

	svc := service.New(service.Deps{
		Builder:     state.NewBuilder(builderCfg),
		Space:       space,
		Agent:       ag,
		Tracker:     tracker,
		Recommender: rec,
		Decisions:   decisions,
		Snapshots:   snapshots,
	}, profiles, service.DefaultConfig())
	defer svc.Close()

	if profilesPath != "" {
		watcher, err := cohort.Watch(profilesPath, svc.SetProfiles)
		if err != nil {
			log.Printf("[SERVE] profiles watch disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	fmt.Println("Recommender ready.")
	fmt.Printf("  DB: %s | Modules: %d | Actions: %d | Learning: %v\n",
		dbPath, len(modules), space.Len(), svc.Learning())
	fmt.Println("Commands: recommend | update | stats | quit")

	repl(svc, ag)
	return nil
}

func repl(svc *service.Service, ag *agent.Agent) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return
		case "recommend":
			if err := replRecommend(svc, fields[1:]); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case "update":
			if err := replUpdate(svc, fields[1:]); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case "stats":
			c := ag.Counters()
			fmt.Printf("states=%d updates=%d episodes=%d applied=%d epsilon=%.4f\n",
				ag.Table().States(), c.Updates, c.Episodes, svc.Applied(), ag.Epsilon())
		default:
			fmt.Println("usage: recommend <learner> <cohort> <module> <progress> <score> | update <learner> <cohort> <module> <action> <prevScore> <score> <completed> <success> | stats | quit")
		}
	}
}

// #endregion serve

// #region repl-commands

func replRecommend(svc *service.Service, args []string) error {
	if len(args) != 5 {
		return fmt.Errorf("recommend <learner> <cohort> <module> <progress> <score>")
	}
	cohortID, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("cohort: %w", err)
	}
	progress, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return fmt.Errorf("progress: %w", err)
	}
	score, err := strconv.ParseFloat(args[4], 64)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := svc.Recommend(ctx, service.RecommendRequest{
		LearnerID: args[0],
		Telemetry: &state.BuildInput{
			RawCohortID: cohortID,
			ModuleID:    args[2],
			Progress:    progress,
			Score:       score,
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("rec %s  state %s  cold_start=%v\n", resp.RecID, resp.StateKey, resp.ColdStart)
	for i, a := range resp.Actions {
		marker := ""
		if a.Activity.Fallback {
			marker = " (fallback)"
		}
		fmt.Printf("%2d. [%2d] %-18s %-8s q=%+.4f → %s%s\n",
			i+1, a.ActionID, a.Action.Type, a.Action.Context, a.Value,
			a.Activity.Activity.Name, marker)
		fmt.Printf("      %s\n", a.Activity.Explanation)
	}
	return nil
}

func replUpdate(svc *service.Service, args []string) error {
	if len(args) != 8 {
		return fmt.Errorf("update <learner> <cohort> <module> <action> <prevScore> <score> <completed> <success>")
	}
	cohortID, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("cohort: %w", err)
	}
	actionID, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("action: %w", err)
	}
	prevScore, err := strconv.ParseFloat(args[4], 64)
	if err != nil {
		return fmt.Errorf("prevScore: %w", err)
	}
	score, err := strconv.ParseFloat(args[5], 64)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	completed := args[6] == "true"
	success := args[7] == "true"

	st, err := svc.BuildState(state.BuildInput{
		RawCohortID: cohortID,
		ModuleID:    args[2],
		Progress:    prevScore,
		Score:       prevScore,
	})
	if err != nil {
		return err
	}

	err = svc.Update(service.UpdateRequest{
		LearnerID: args[0],
		State:     st,
		ActionID:  actionID,
		Outcome:   reward.Outcome{Completed: completed, Score: score, Success: success},
		Terminal:  true,
		PrevScore: prevScore,
	})
	if err != nil {
		return err
	}
	fmt.Println("update queued")
	return nil
}

// #endregion repl-commands
