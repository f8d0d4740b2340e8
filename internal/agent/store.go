package agent

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS q_snapshots (
	snapshot_id   TEXT PRIMARY KEY,
	state_arity   INTEGER NOT NULL,
	artifact_json TEXT NOT NULL,
	states        INTEGER NOT NULL,
	updates       INTEGER NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_snapshot (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	snapshot_id  TEXT NOT NULL,
	FOREIGN KEY (snapshot_id) REFERENCES q_snapshots(snapshot_id)
);
`

// #endregion

// #region store

// SnapshotStore persists versioned table artifacts in SQLite and tracks the
// active one. It owns the database handle; other stores borrow it via DB().
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore opens the database and runs migrations.
func NewSnapshotStore(dbPath string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(snapshotSchema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other stores.
func (s *SnapshotStore) DB() *sql.DB {
	return s.db
}

// #endregion

// #region save

// Save inserts an artifact as a new snapshot and moves the active pointer to
// it atomically. Returns the snapshot id.
func (s *SnapshotStore) Save(art Artifact) (string, error) {
	blob, err := json.Marshal(art)
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO q_snapshots (snapshot_id, state_arity, artifact_json, states, updates, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, art.StateArity, string(blob), len(art.Table), art.Counters.Updates, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_snapshot (id, snapshot_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET snapshot_id = excluded.snapshot_id`,
		id,
	)
	if err != nil {
		return "", fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// #endregion

// #region load

// ErrNoSnapshot indicates a cold start: no artifact has ever been saved.
var ErrNoSnapshot = fmt.Errorf("no active snapshot")

// LoadActive reads the active artifact. A missing pointer returns
// ErrNoSnapshot; corrupt JSON returns a parse error so the caller can cold
// start instead.
func (s *SnapshotStore) LoadActive() (Artifact, error) {
	var snapshotID string
	err := s.db.QueryRow(`SELECT snapshot_id FROM active_snapshot WHERE id = 1`).Scan(&snapshotID)
	if err == sql.ErrNoRows {
		return Artifact{}, ErrNoSnapshot
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("get active: %w", err)
	}
	return s.Load(snapshotID)
}

// Load reads a specific snapshot by id.
func (s *SnapshotStore) Load(snapshotID string) (Artifact, error) {
	var blob string
	err := s.db.QueryRow(
		`SELECT artifact_json FROM q_snapshots WHERE snapshot_id = ?`, snapshotID,
	).Scan(&blob)
	if err != nil {
		return Artifact{}, fmt.Errorf("get snapshot %s: %w", snapshotID, err)
	}
	var art Artifact
	if err := json.Unmarshal([]byte(blob), &art); err != nil {
		return Artifact{}, fmt.Errorf("parse snapshot %s: %w", snapshotID, err)
	}
	return art, nil
}

// #endregion

// #region list

// SnapshotInfo summarizes one stored snapshot.
type SnapshotInfo struct {
	SnapshotID string
	StateArity int
	States     int
	Updates    int64
	CreatedAt  time.Time
}

// List returns the most recent snapshots.
func (s *SnapshotStore) List(limit int) ([]SnapshotInfo, error) {
	rows, err := s.db.Query(
		`SELECT snapshot_id, state_arity, states, updates, created_at
		 FROM q_snapshots ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var created string
		if err := rows.Scan(&info.SnapshotID, &info.StateArity, &info.States, &info.Updates, &created); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, info)
	}
	return out, rows.Err()
}

// #endregion
