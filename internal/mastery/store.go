package mastery

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema

const masterySchema = `
CREATE TABLE IF NOT EXISTS lo_mastery (
	learner_id  TEXT NOT NULL,
	outcome_id  TEXT NOT NULL,
	mastery     REAL NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (learner_id, outcome_id)
);
`

// #endregion

// #region store

// Store persists mastery scalars in SQLite. The db handle is shared with the
// snapshot store; Store only owns its table.
type Store struct {
	db *sql.DB
}

// NewStore initializes the lo_mastery table on an open database.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(masterySchema); err != nil {
		return nil, fmt.Errorf("migrate lo_mastery: %w", err)
	}
	return &Store{db: db}, nil
}

// Upsert writes one mastery value.
func (s *Store) Upsert(learnerID, outcomeID string, mastery float64) error {
	_, err := s.db.Exec(
		`INSERT INTO lo_mastery (learner_id, outcome_id, mastery, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(learner_id, outcome_id) DO UPDATE SET
		   mastery = excluded.mastery, updated_at = excluded.updated_at`,
		learnerID, outcomeID, mastery, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert mastery: %w", err)
	}
	return nil
}

// LoadAll reads every persisted mastery value, keyed learner → outcome.
func (s *Store) LoadAll() (map[string]map[string]float64, error) {
	rows, err := s.db.Query(`SELECT learner_id, outcome_id, mastery FROM lo_mastery`)
	if err != nil {
		return nil, fmt.Errorf("load mastery: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]float64)
	for rows.Next() {
		var learner, outcome string
		var m float64
		if err := rows.Scan(&learner, &outcome, &m); err != nil {
			return nil, fmt.Errorf("scan mastery row: %w", err)
		}
		if out[learner] == nil {
			out[learner] = make(map[string]float64)
		}
		out[learner][outcome] = m
	}
	return out, rows.Err()
}

// #endregion
