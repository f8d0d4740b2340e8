package agent

import (
	"hash/fnv"
	"sync"
)

// #region sharding

// tableShards is fixed; the shard of a state never changes within a process.
const tableShards = 16

func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % tableShards)
}

// #endregion

// #region table

// Table is the sparse action-value table, sharded by state-key hash so
// concurrent updates for different learners rarely contend. An unseen
// (state, action) cell implicitly holds 0.0.
type Table struct {
	shards [tableShards]*tableShard
}

type tableShard struct {
	mu     sync.RWMutex
	states map[string]map[int]float64
}

// NewTable returns an empty table.
func NewTable() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i] = &tableShard{states: make(map[string]map[int]float64)}
	}
	return t
}

// #endregion

// #region reads

// Get returns the cell value and whether it has ever been written.
func (t *Table) Get(stateKey string, actionID int) (float64, bool) {
	s := t.shards[shardIndex(stateKey)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.states[stateKey][actionID]
	return v, ok
}

// StateValues returns a copy of the stored values for a state, nil if the
// state has never been visited.
func (t *Table) StateValues(stateKey string) map[int]float64 {
	s := t.shards[shardIndex(stateKey)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.states[stateKey]
	if !ok {
		return nil
	}
	out := make(map[int]float64, len(stored))
	for k, v := range stored {
		out[k] = v
	}
	return out
}

// Visited reports whether a state has any stored cell.
func (t *Table) Visited(stateKey string) bool {
	s := t.shards[shardIndex(stateKey)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states[stateKey]) > 0
}

// States counts states with at least one stored cell.
func (t *Table) States() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.states)
		s.mu.RUnlock()
	}
	return n
}

// #endregion

// #region writes

// Apply runs a read-modify-write on one cell under the shard lock. The
// Bellman update is not commutative across concurrent writers, so the whole
// step holds the lock.
func (t *Table) Apply(stateKey string, actionID int, f func(old float64) float64) float64 {
	s := t.shards[shardIndex(stateKey)]
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.states[stateKey]
	if !ok {
		row = make(map[int]float64)
		s.states[stateKey] = row
	}
	next := f(row[actionID])
	row[actionID] = next
	return next
}

// Set writes one cell directly. Used by tests and snapshot restore.
func (t *Table) Set(stateKey string, actionID int, v float64) {
	t.Apply(stateKey, actionID, func(float64) float64 { return v })
}

// #endregion

// #region snapshot

// Snapshot deep-copies the whole table. Taken off the hot path by the
// background snapshot loop.
func (t *Table) Snapshot() map[string]map[int]float64 {
	out := make(map[string]map[int]float64)
	for _, s := range t.shards {
		s.mu.RLock()
		for key, row := range s.states {
			cp := make(map[int]float64, len(row))
			for a, v := range row {
				cp[a] = v
			}
			out[key] = cp
		}
		s.mu.RUnlock()
	}
	return out
}

// Restore replaces the table contents with a snapshot.
func (t *Table) Restore(snapshot map[string]map[int]float64) {
	for _, s := range t.shards {
		s.mu.Lock()
		s.states = make(map[string]map[int]float64)
		s.mu.Unlock()
	}
	for key, row := range snapshot {
		for a, v := range row {
			t.Set(key, a, v)
		}
	}
}

// #endregion
