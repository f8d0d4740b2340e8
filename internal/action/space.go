package action

import "fmt"

// #region orderings

// typeOrder and contextOrder fix the catalog enumeration order. Persisted
// tables key actions by id, so this order must never change between releases.
var typeOrder = []Type{
	TypeViewContent,
	TypeAttemptQuiz,
	TypeSubmitQuiz,
	TypeReviewQuiz,
	TypePostForum,
	TypeSubmitAssignment,
}

var contextOrder = []TimeContext{
	ContextPast,
	ContextCurrent,
	ContextFuture,
}

// #endregion

// #region invalid-combos

// invalidCombos are pairs excluded from the catalog. Graded work cannot be
// submitted into a future module, and a future quiz has nothing to review.
var invalidCombos = map[Type]map[TimeContext]bool{
	TypeSubmitQuiz:       {ContextFuture: true},
	TypeSubmitAssignment: {ContextFuture: true},
	TypeReviewQuiz:       {ContextFuture: true},
}

// #endregion

// #region space

// Space is the immutable action catalog, built once at startup.
type Space struct {
	actions []Action
	byPair  map[Type]map[TimeContext]int
}

// NewSpace enumerates the type × context product minus invalid combinations,
// assigning ids in enumeration order.
func NewSpace() *Space {
	s := &Space{
		byPair: make(map[Type]map[TimeContext]int),
	}
	id := 0
	for _, t := range typeOrder {
		for _, c := range contextOrder {
			if invalidCombos[t][c] {
				continue
			}
			s.actions = append(s.actions, Action{ID: id, Type: t, Context: c})
			if s.byPair[t] == nil {
				s.byPair[t] = make(map[TimeContext]int)
			}
			s.byPair[t][c] = id
			id++
		}
	}
	return s
}

// Len returns the catalog size.
func (s *Space) Len() int {
	return len(s.actions)
}

// ByID returns the action with the given id.
func (s *Space) ByID(id int) (Action, error) {
	if id < 0 || id >= len(s.actions) {
		return Action{}, fmt.Errorf("action id %d out of range [0,%d)", id, len(s.actions))
	}
	return s.actions[id], nil
}

// Lookup resolves a (type, context) pair to its catalog entry.
func (s *Space) Lookup(t Type, c TimeContext) (Action, error) {
	ctxs, ok := s.byPair[t]
	if !ok {
		return Action{}, fmt.Errorf("unknown action type %q", t)
	}
	id, ok := ctxs[c]
	if !ok {
		return Action{}, fmt.Errorf("action %s(%s) not in catalog", t, c)
	}
	return s.actions[id], nil
}

// All returns the full catalog in id order. Callers must not mutate it.
func (s *Space) All() []Action {
	return s.actions
}

// Available returns the catalog minus the excluded ids, id order preserved.
func (s *Space) Available(excluded map[int]bool) []Action {
	if len(excluded) == 0 {
		return s.actions
	}
	out := make([]Action, 0, len(s.actions))
	for _, a := range s.actions {
		if !excluded[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

// #endregion
