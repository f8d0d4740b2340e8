// Package service is the request/response boundary over the learning core:
// state construction, value-table lookups, activity mapping, and the async
// update loop.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/agent"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/cohort"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/logging"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/mastery"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/recommend"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/reward"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/state"
)

// #region deps

// Deps are the collaborators the service wires together. Decisions and
// Snapshots may be nil for in-memory operation.
type Deps struct {
	Builder     *state.Builder
	Space       *action.Space
	Agent       *agent.Agent
	Tracker     *mastery.Tracker
	Recommender *recommend.Recommender
	Decisions   *logging.DecisionLog
	Snapshots   *agent.SnapshotStore
}

// #endregion

// #region service

// job is one queued unit of background work. Exactly one field is set; done
// is the Flush sentinel.
type job struct {
	update   *UpdateRequest
	decision *logging.DecisionEntry
	done     chan struct{}
}

type actionRun struct {
	typ action.Type
	run int
}

// Service owns the serving boundary. The hot path never touches disk: updates
// and decision rows drain through a single background worker, and snapshots
// run on their own timer.
type Service struct {
	deps Deps
	cfg  Config

	profMu   sync.RWMutex
	profiles *cohort.Profiles

	learning bool // kill switch: RECOMMENDER_LEARNING=false freezes the table

	queue chan job
	stop  chan struct{}
	wg    sync.WaitGroup

	ringMu  sync.Mutex
	rings   map[string][]string  // learner → recent activity ids, newest last
	lastAct map[string]actionRun // learner → last applied action type and run length

	snapMu       sync.Mutex
	sinceSnap    int
	appliedTotal int64
}

// New wires the service and restores the active table snapshot. A missing or
// unreadable snapshot is a cold start, never a startup failure.
// Kill switch: set RECOMMENDER_LEARNING=false to serve a frozen table.
func New(deps Deps, profiles *cohort.Profiles, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.RecencyDepth <= 0 {
		cfg.RecencyDepth = def.RecencyDepth
	}

	learning := true
	if v := os.Getenv("RECOMMENDER_LEARNING"); v == "false" {
		learning = false
		log.Printf("[SVC] learning disabled by kill switch, serving frozen table")
	}

	s := &Service{
		deps:     deps,
		cfg:      cfg,
		profiles: profiles,
		learning: learning,
		queue:    make(chan job, cfg.QueueSize),
		stop:     make(chan struct{}),
		rings:    make(map[string][]string),
		lastAct:  make(map[string]actionRun),
	}

	s.restore()

	s.wg.Add(1)
	go s.worker()
	if cfg.SnapshotInterval > 0 && deps.Snapshots != nil {
		s.wg.Add(1)
		go s.snapshotLoop()
	}
	return s
}

func (s *Service) restore() {
	if s.deps.Snapshots == nil {
		return
	}
	art, err := s.deps.Snapshots.LoadActive()
	if errors.Is(err, agent.ErrNoSnapshot) {
		log.Printf("[SVC] no snapshot found, cold start")
		return
	}
	if err != nil {
		log.Printf("[SVC] snapshot unreadable, cold start: %v", err)
		return
	}
	if err := s.deps.Agent.Import(art); err != nil {
		log.Printf("[SVC] snapshot rejected, cold start: %v", err)
		return
	}
	log.Printf("[SVC] restored snapshot: %d states, %d updates",
		len(art.Table), art.Counters.Updates)
}

// Learning reports whether the kill switch left the update loop active.
func (s *Service) Learning() bool {
	return s.learning
}

// SetProfiles swaps the coefficient tables after a config reload. The swap
// fans out to the agent and the mastery tracker.
func (s *Service) SetProfiles(p *cohort.Profiles) {
	s.profMu.Lock()
	s.profiles = p
	s.profMu.Unlock()
	s.deps.Agent.SetProfiles(p)
	s.deps.Tracker.SetProfiles(p)
	log.Printf("[SVC] cohort profiles reloaded")
}

func (s *Service) currentProfiles() *cohort.Profiles {
	s.profMu.RLock()
	defer s.profMu.RUnlock()
	return s.profiles
}

// #endregion

// #region recommend

// Recommend serves the top-k scored actions for a learner, each mapped to a
// concrete activity. Value lookups come from the in-memory table; only the
// activity catalog is consulted under ctx.
func (s *Service) Recommend(ctx context.Context, req RecommendRequest) (RecommendResponse, error) {
	st, err := s.resolveState(req)
	if err != nil {
		return RecommendResponse{}, err
	}

	excluded := make(map[int]bool, len(req.ExcludedActionIDs))
	for _, id := range req.ExcludedActionIDs {
		excluded[id] = true
	}
	available := s.deps.Space.Available(excluded)
	if len(available) == 0 {
		return RecommendResponse{}, fmt.Errorf("all %d actions excluded for state %s",
			s.deps.Space.Len(), st.Key())
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	scored, visited := s.deps.Agent.Recommend(st, available, topK)
	tier := s.currentProfiles().TierOf(st.CohortID)
	recent := s.recent(req.LearnerID)

	resp := RecommendResponse{
		RecID:     uuid.NewString(),
		StateKey:  st.Key(),
		ColdStart: !visited,
		Actions:   make([]RecommendedAction, 0, len(scored)),
	}
	for _, sc := range scored {
		act, err := s.deps.Space.ByID(sc.ActionID)
		if err != nil {
			return RecommendResponse{}, fmt.Errorf("scored action %d: %w", sc.ActionID, err)
		}
		activity := s.deps.Recommender.Select(ctx, req.LearnerID, act, st.ModuleIndex, tier, recent)
		resp.Actions = append(resp.Actions, RecommendedAction{
			ActionID: sc.ActionID,
			Action:   act,
			Value:    sc.Value,
			Activity: activity,
		})
	}

	if len(resp.Actions) > 0 {
		top := resp.Actions[0]
		s.remember(req.LearnerID, top.Activity.Activity.ID)
		s.enqueueDecision(logging.DecisionEntry{
			RecID:      resp.RecID,
			LearnerID:  req.LearnerID,
			StateKey:   resp.StateKey,
			ActionID:   top.ActionID,
			ActivityID: top.Activity.Activity.ID,
			Fallback:   top.Activity.Fallback,
			Reason:     top.Activity.Explanation,
		})
	}
	return resp, nil
}

// BuildState exposes the state builder for callers that discretize telemetry
// ahead of time, e.g. to reuse one state across recommend and update.
func (s *Service) BuildState(in state.BuildInput) (state.State, error) {
	return s.deps.Builder.Build(in)
}

func (s *Service) resolveState(req RecommendRequest) (state.State, error) {
	switch {
	case req.State != nil:
		return *req.State, nil
	case req.Telemetry != nil:
		return s.deps.Builder.Build(*req.Telemetry)
	default:
		return state.State{}, fmt.Errorf("recommend request carries neither state nor telemetry")
	}
}

// #endregion

// #region update

// Update acknowledges immediately; the reward computation, Bellman update,
// and mastery EMA run on the background worker. A full queue is reported to
// the caller rather than blocking the hot path.
func (s *Service) Update(req UpdateRequest) error {
	if !s.learning {
		return nil
	}
	select {
	case s.queue <- job{update: &req}:
		return nil
	default:
		return fmt.Errorf("update queue full (%d pending)", s.cfg.QueueSize)
	}
}

func (s *Service) enqueueDecision(entry logging.DecisionEntry) {
	if s.deps.Decisions == nil {
		return
	}
	select {
	case s.queue <- job{decision: &entry}:
	default:
		log.Printf("[SVC] decision queue full, dropping rec %s", entry.RecID)
	}
}

func (s *Service) worker() {
	defer s.wg.Done()
	for j := range s.queue {
		switch {
		case j.update != nil:
			s.apply(*j.update)
		case j.decision != nil:
			if err := s.deps.Decisions.Record(*j.decision); err != nil {
				log.Printf("[SVC] decision log failed: %v", err)
			}
		case j.done != nil:
			close(j.done)
		}
	}
}

func (s *Service) apply(req UpdateRequest) {
	profiles := s.currentProfiles()
	tier := profiles.TierOf(req.State.CohortID)

	act, err := s.deps.Space.ByID(req.ActionID)
	if err != nil {
		log.Printf("[SVC] dropping update with bad action id %d: %v", req.ActionID, err)
		return
	}

	prevType, run := s.trackRun(req.LearnerID, act.Type)
	if req.PrevActionType != "" {
		prevType = req.PrevActionType
	}
	if req.ConsecutiveSameType > 0 {
		run = req.ConsecutiveSameType
	}

	breakdown := reward.Calculate(reward.Input{
		Tier:                tier,
		Coeffs:              profiles.Coefficients(tier),
		State:               req.State,
		Action:              act,
		Outcome:             req.Outcome,
		PrevScore:           req.PrevScore,
		PrevActionType:      prevType,
		ConsecutiveSameType: run,
		Stuck:               req.Stuck,
	})
	total := breakdown.Total()
	if math.IsNaN(total) || math.IsInf(total, 0) {
		log.Printf("[SVC] non-finite reward for %s action %d, dropping update",
			req.LearnerID, req.ActionID)
		return
	}

	value := s.deps.Agent.Update(agent.Transition{
		State:    req.State,
		ActionID: req.ActionID,
		Reward:   total,
		Next:     req.Next,
		Terminal: req.Terminal,
		Tier:     tier,
	})
	log.Printf("[SVC] applied update: learner=%s action=%d reward=%.3f q=%.3f",
		req.LearnerID, req.ActionID, total, value)

	for outcomeID, target := range req.MasteryTargets {
		if _, err := s.deps.Tracker.Update(req.LearnerID, tier, outcomeID, target); err != nil {
			log.Printf("[SVC] mastery update failed for %s/%s: %v",
				req.LearnerID, outcomeID, err)
		}
	}

	s.snapMu.Lock()
	s.appliedTotal++
	s.sinceSnap++
	due := s.cfg.SnapshotEvery > 0 && s.sinceSnap >= s.cfg.SnapshotEvery
	if due {
		s.sinceSnap = 0
	}
	s.snapMu.Unlock()
	if due {
		s.snapshot()
	}
}

// trackRun returns the learner's previous action type and the new run length
// for the current type, then records the current choice.
func (s *Service) trackRun(learnerID string, t action.Type) (action.Type, int) {
	s.ringMu.Lock()
	defer s.ringMu.Unlock()
	last := s.lastAct[learnerID]
	run := 1
	if last.typ == t {
		run = last.run + 1
	}
	s.lastAct[learnerID] = actionRun{typ: t, run: run}
	return last.typ, run
}

// #endregion

// #region recency

func (s *Service) remember(learnerID, activityID string) {
	s.ringMu.Lock()
	defer s.ringMu.Unlock()
	ring := append(s.rings[learnerID], activityID)
	if len(ring) > s.cfg.RecencyDepth {
		ring = ring[len(ring)-s.cfg.RecencyDepth:]
	}
	s.rings[learnerID] = ring
}

func (s *Service) recent(learnerID string) []string {
	s.ringMu.Lock()
	defer s.ringMu.Unlock()
	ring := s.rings[learnerID]
	out := make([]string, len(ring))
	copy(out, ring)
	return out
}

// #endregion

// #region snapshots

func (s *Service) snapshotLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.snapshot()
		case <-s.stop:
			return
		}
	}
}

func (s *Service) snapshot() {
	if s.deps.Snapshots == nil {
		return
	}
	art := s.deps.Agent.Export()
	id, err := s.deps.Snapshots.Save(art)
	if err != nil {
		log.Printf("[SVC] snapshot failed: %v", err)
		return
	}
	log.Printf("[SVC] snapshot %s: %d states, %d updates",
		id, len(art.Table), art.Counters.Updates)
}

// #endregion

// #region lifecycle

// Flush blocks until every previously queued update and decision row has been
// applied. Intended for tests and shutdown.
func (s *Service) Flush() {
	done := make(chan struct{})
	s.queue <- job{done: done}
	<-done
}

// Close drains the queue, stops the background loops, and writes a final
// snapshot.
func (s *Service) Close() {
	s.Flush()
	close(s.stop)
	close(s.queue)
	s.wg.Wait()
	s.snapshot()
}

// Applied reports how many updates the worker has applied.
func (s *Service) Applied() int64 {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.appliedTotal
}

// #endregion
