package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/agent"
)

var (
	inspectDB       string
	inspectSnapshot string
	inspectLast     int
	inspectJSON     bool
	inspectTop      int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect stored value-table snapshots",
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectDB, "db", "recommender.db", "snapshot database path")
	inspectCmd.Flags().StringVar(&inspectSnapshot, "snapshot", "", "show one snapshot in detail (default: list)")
	inspectCmd.Flags().IntVar(&inspectLast, "last", 20, "show N most recent snapshots")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "output as JSON instead of table")
	inspectCmd.Flags().IntVar(&inspectTop, "top", 10, "states shown in detail mode, by cell count")
}

func runInspect(cobraCmd *cobra.Command, args []string) error {
	store, err := agent.NewSnapshotStore(inspectDB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if inspectSnapshot != "" {
		return inspectDetail(store, inspectSnapshot)
	}
	return inspectList(store)
}

// #region list-mode

func inspectList(store *agent.SnapshotStore) error {
	infos, err := store.List(inspectLast)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no snapshots found")
		return nil
	}
	if inspectJSON {
		return printJSON(infos)
	}

	fmt.Printf("%-38s  %5s  %8s  %10s  %s\n", "Snapshot", "Arity", "States", "Updates", "Created")
	for _, info := range infos {
		fmt.Printf("%-38s  %5d  %8d  %10d  %s\n",
			info.SnapshotID, info.StateArity, info.States, info.Updates,
			info.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type stateRow struct {
	StateKey string  `json:"state_key"`
	Cells    int     `json:"cells"`
	MaxValue float64 `json:"max_value"`
}

type detailOutput struct {
	StateArity      int                   `json:"state_arity"`
	Hyperparameters agent.Hyperparameters `json:"hyperparameters"`
	Counters        agent.Counters        `json:"counters"`
	States          int                   `json:"states"`
	TopStates       []stateRow            `json:"top_states"`
}

func inspectDetail(store *agent.SnapshotStore, id string) error {
	art, err := store.Load(id)
	if err != nil {
		return err
	}

	rows := make([]stateRow, 0, len(art.Table))
	for key, cells := range art.Table {
		row := stateRow{StateKey: key, Cells: len(cells)}
		first := true
		for _, v := range cells {
			if first || v > row.MaxValue {
				row.MaxValue = v
				first = false
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Cells != rows[j].Cells {
			return rows[i].Cells > rows[j].Cells
		}
		return rows[i].StateKey < rows[j].StateKey
	})
	if len(rows) > inspectTop {
		rows = rows[:inspectTop]
	}

	out := detailOutput{
		StateArity:      art.StateArity,
		Hyperparameters: art.Hyperparameters,
		Counters:        art.Counters,
		States:          len(art.Table),
		TopStates:       rows,
	}
	if inspectJSON {
		return printJSON(out)
	}

	fmt.Printf("Snapshot:  %s\n", id)
	fmt.Printf("Arity:     %d\n", out.StateArity)
	fmt.Printf("States:    %d\n", out.States)
	fmt.Printf("Updates:   %d over %d episodes\n", out.Counters.Updates, out.Counters.Episodes)
	fmt.Printf("Gamma:     %.3f  Epsilon: %.3f→%.3f (decay %.4f)\n",
		out.Hyperparameters.Gamma, out.Hyperparameters.EpsilonStart,
		out.Hyperparameters.EpsilonMin, out.Hyperparameters.EpsilonDecay)

	fmt.Printf("\nMost-explored states:\n")
	for _, r := range rows {
		fmt.Printf("  %-24s  %3d cells  max %+.4f\n", r.StateKey, r.Cells, r.MaxValue)
	}
	return nil
}

// #endregion detail-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion output
