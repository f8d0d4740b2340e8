// Package content backs the recommender's activity catalog with SQLite.
package content

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/recommend"
)

// #region schema

const catalogSchema = `
CREATE TABLE IF NOT EXISTS activities (
	activity_id   TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	module_index  INTEGER NOT NULL,
	difficulty    TEXT NOT NULL,
	kind          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_outcomes (
	activity_id  TEXT NOT NULL REFERENCES activities(activity_id) ON DELETE CASCADE,
	outcome_id   TEXT NOT NULL,
	PRIMARY KEY (activity_id, outcome_id)
);

CREATE INDEX IF NOT EXISTS idx_activity_outcomes_outcome
	ON activity_outcomes(outcome_id);
`

// #endregion

// #region catalog

// SQLCatalog implements recommend.Catalog over the shared SQLite handle.
// The db is shared with the snapshot and mastery stores; SQLCatalog only
// owns its two tables.
type SQLCatalog struct {
	db *sql.DB
}

// NewSQLCatalog initializes the catalog tables on an open database.
func NewSQLCatalog(db *sql.DB) (*SQLCatalog, error) {
	if _, err := db.Exec(catalogSchema); err != nil {
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return &SQLCatalog{db: db}, nil
}

// Put writes one activity and its outcome links in a single transaction.
func (c *SQLCatalog) Put(ctx context.Context, a recommend.Activity) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO activities (activity_id, name, module_index, difficulty, kind)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(activity_id) DO UPDATE SET
		   name = excluded.name, module_index = excluded.module_index,
		   difficulty = excluded.difficulty, kind = excluded.kind`,
		a.ID, a.Name, a.ModuleIndex, string(a.Difficulty), string(a.Kind),
	)
	if err != nil {
		return fmt.Errorf("upsert activity %s: %w", a.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM activity_outcomes WHERE activity_id = ?`, a.ID); err != nil {
		return fmt.Errorf("clear outcome links %s: %w", a.ID, err)
	}
	for _, outcome := range a.Outcomes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO activity_outcomes (activity_id, outcome_id) VALUES (?, ?)`,
			a.ID, outcome); err != nil {
			return fmt.Errorf("link %s to %s: %w", a.ID, outcome, err)
		}
	}
	return tx.Commit()
}

// ForOutcome returns every activity linked to the given learning outcome,
// each with its full outcome list attached.
func (c *SQLCatalog) ForOutcome(ctx context.Context, outcomeID string) ([]recommend.Activity, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT a.activity_id, a.name, a.module_index, a.difficulty, a.kind
		 FROM activities a
		 JOIN activity_outcomes ao ON ao.activity_id = a.activity_id
		 WHERE ao.outcome_id = ?
		 ORDER BY a.activity_id`, outcomeID)
	if err != nil {
		return nil, fmt.Errorf("query activities for %s: %w", outcomeID, err)
	}
	defer rows.Close()

	var out []recommend.Activity
	for rows.Next() {
		var a recommend.Activity
		var diff, kind string
		if err := rows.Scan(&a.ID, &a.Name, &a.ModuleIndex, &diff, &kind); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		a.Difficulty = action.Difficulty(diff)
		a.Kind = action.Category(kind)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		outcomes, err := c.outcomesOf(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Outcomes = outcomes
	}
	return out, nil
}

func (c *SQLCatalog) outcomesOf(ctx context.Context, activityID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT outcome_id FROM activity_outcomes WHERE activity_id = ? ORDER BY outcome_id`,
		activityID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes for %s: %w", activityID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Count reports how many activities the catalog holds.
func (c *SQLCatalog) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return n, nil
}

// #endregion
