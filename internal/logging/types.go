package logging

import "time"

// #region decision-entry
// DecisionEntry is a single row in the decision_log table. One row is written
// per served recommendation so any response can be traced back to the state
// key, the abstract action, and the concrete item that produced it.
type DecisionEntry struct {
	RecID      string
	LearnerID  string
	StateKey   string
	ActionID   int
	ActivityID string
	Fallback   bool
	Reason     string
	CreatedAt  time.Time
}

// #endregion decision-entry
