// Package logging records served recommendations for audit and offline
// analysis.
package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema

const decisionSchema = `
CREATE TABLE IF NOT EXISTS decision_log (
	rec_id      TEXT PRIMARY KEY,
	learner_id  TEXT NOT NULL,
	state_key   TEXT NOT NULL,
	action_id   INTEGER NOT NULL,
	activity_id TEXT NOT NULL,
	fallback    INTEGER NOT NULL,
	reason      TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_log_learner
	ON decision_log(learner_id, created_at);
`

// #endregion schema

// #region decision-log

// DecisionLog persists one row per served recommendation. The db handle is
// shared with the other stores; DecisionLog only owns its table.
type DecisionLog struct {
	db *sql.DB
}

// NewDecisionLog initializes the decision_log table on an open database.
func NewDecisionLog(db *sql.DB) (*DecisionLog, error) {
	if _, err := db.Exec(decisionSchema); err != nil {
		return nil, fmt.Errorf("migrate decision_log: %w", err)
	}
	return &DecisionLog{db: db}, nil
}

// Record writes one decision entry.
func (l *DecisionLog) Record(entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.Exec(
		`INSERT INTO decision_log (rec_id, learner_id, state_key, action_id, activity_id, fallback, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RecID,
		entry.LearnerID,
		entry.StateKey,
		entry.ActionID,
		entry.ActivityID,
		boolToInt(entry.Fallback),
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// Recent returns the learner's latest served activity ids, newest last. It
// feeds the recommender's repeat-avoidance window.
func (l *DecisionLog) Recent(learnerID string, limit int) ([]string, error) {
	rows, err := l.db.Query(
		`SELECT activity_id FROM decision_log
		 WHERE learner_id = ? ORDER BY created_at DESC LIMIT ?`,
		learnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent decisions: %w", err)
	}
	defer rows.Close()

	var newestFirst []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan decision row: %w", err)
		}
		newestFirst = append(newestFirst, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]string, len(newestFirst))
	for i, id := range newestFirst {
		out[len(newestFirst)-1-i] = id
	}
	return out, nil
}

// #endregion decision-log

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
