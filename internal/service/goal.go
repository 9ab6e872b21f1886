package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/store"
	"go.uber.org/zap"
)

// Goal lifecycle constants
const (
	DefaultMaxActiveGoals = 20                 // Active-set cap enforced by cleanup
	DefaultGoalTTL        = 7 * 24 * time.Hour // Unfinished goals older than this are abandoned

	UrgencyHorizon  = 24 * time.Hour // Deadline window that earns an urgency boost
	MaxUrgencyBoost = 30.0           // Boost at a deadline that is due now
)

type goalSnapshot struct {
	Goals []domain.Goal `json:"goals"`
}

// SubgoalSpec describes one subgoal in a decomposition.
type SubgoalSpec struct {
	Type            domain.GoalType
	Description     string
	Priority        float64
	SuccessCriteria string
}

// GoalService owns goal creation, prioritization, decomposition, and
// lifecycle transitions. Every mutation persists the goal store snapshot
// before returning.
type GoalService struct {
	snapshots domain.SnapshotStore
	logger    *zap.Logger

	mu    sync.RWMutex
	goals map[uuid.UUID]*domain.Goal

	maxActive int
	ttl       time.Duration
}

func NewGoalService(snapshots domain.SnapshotStore, logger *zap.Logger) *GoalService {
	return &GoalService{
		snapshots: snapshots,
		logger:    logger,
		goals:     make(map[uuid.UUID]*domain.Goal),
		maxActive: DefaultMaxActiveGoals,
		ttl:       DefaultGoalTTL,
	}
}

// SetLimits overrides the active-set cap and stale TTL.
func (s *GoalService) SetLimits(maxActive int, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxActive > 0 {
		s.maxActive = maxActive
	}
	if ttl > 0 {
		s.ttl = ttl
	}
}

// Restore loads the persisted snapshot. A missing snapshot starts fresh.
func (s *GoalService) Restore(ctx context.Context) error {
	var snap goalSnapshot
	err := s.snapshots.Load(ctx, domain.SnapshotGoalStore, &snap)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore goal store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals = make(map[uuid.UUID]*domain.Goal, len(snap.Goals))
	for i := range snap.Goals {
		g := snap.Goals[i]
		s.goals[g.ID] = &g
	}
	return nil
}

// CreateGoal creates an active goal.
func (s *GoalService) CreateGoal(ctx context.Context, typ domain.GoalType, description string, priority float64, opts ...GoalOption) (*domain.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := &domain.Goal{
		ID:          uuid.New(),
		Type:        typ,
		Description: description,
		Priority:    domain.ClampPriority(priority),
		Status:      domain.GoalActive,
		CreatedAt:   time.Now(),
	}
	for _, opt := range opts {
		opt(g)
	}
	s.goals[g.ID] = g

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// GoalOption customizes a goal at creation time.
type GoalOption func(*domain.Goal)

func WithDeadline(t time.Time) GoalOption {
	return func(g *domain.Goal) { g.Deadline = &t }
}

func WithSuccessCriteria(c string) GoalOption {
	return func(g *domain.Goal) { g.SuccessCriteria = c }
}

func WithMetadata(m map[string]any) GoalOption {
	return func(g *domain.Goal) { g.Metadata = m }
}

// WithSourceSignal tags the goal with the signal that caused its creation.
func WithSourceSignal(id uuid.UUID) GoalOption {
	return func(g *domain.Goal) {
		if g.Metadata == nil {
			g.Metadata = make(map[string]any)
		}
		g.Metadata["signal_id"] = id.String()
	}
}

// CreateProactiveGoal creates a self-initiated goal tagged with its trigger.
func (s *GoalService) CreateProactiveGoal(ctx context.Context, description string, priority float64, trigger string, opts ...GoalOption) (*domain.Goal, error) {
	base := []GoalOption{WithMetadata(map[string]any{
		"self_initiated": true,
		"trigger":        trigger,
	})}
	return s.CreateGoal(ctx, domain.GoalProactive, description, priority, append(base, opts...)...)
}

// DecomposeGoal creates subgoals under a parent and links them.
func (s *GoalService) DecomposeGoal(ctx context.Context, parentID uuid.UUID, specs []SubgoalSpec) ([]*domain.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.goals[parentID]
	if !ok {
		return nil, store.ErrNotFound
	}

	subs := make([]*domain.Goal, 0, len(specs))
	for _, spec := range specs {
		g := &domain.Goal{
			ID:              uuid.New(),
			Type:            spec.Type,
			Description:     spec.Description,
			Priority:        domain.ClampPriority(spec.Priority),
			Status:          domain.GoalActive,
			ParentGoalID:    &parent.ID,
			SuccessCriteria: spec.SuccessCriteria,
			CreatedAt:       time.Now(),
		}
		s.goals[g.ID] = g
		parent.SubGoalIDs = append(parent.SubGoalIDs, g.ID)
		subs = append(subs, g)
	}

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return subs, nil
}

// GetGoal returns a copy of the goal.
func (s *GoalService) GetGoal(id uuid.UUID) (*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.goals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

// ListGoals returns all goals ordered by creation time.
func (s *GoalService) ListGoals() []domain.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Goal, 0, len(s.goals))
	for _, g := range s.goals {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// StartGoal moves an active or blocked goal to in_progress.
func (s *GoalService) StartGoal(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.goals[id]
	if !ok {
		return store.ErrNotFound
	}
	if g.Status.Terminal() {
		return fmt.Errorf("goal %s is %s and cannot be started", id, g.Status)
	}
	if g.StartedAt == nil {
		now := time.Now()
		g.StartedAt = &now
	}
	g.Status = domain.GoalInProgress
	return s.persistLocked(ctx)
}

// AchieveGoal marks a goal achieved and propagates to its parent.
func (s *GoalService) AchieveGoal(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, domain.GoalAchieved, "")
}

// FailGoal marks a goal failed with a reason and propagates to its parent.
func (s *GoalService) FailGoal(ctx context.Context, id uuid.UUID, reason string) error {
	return s.finish(ctx, id, domain.GoalFailed, reason)
}

func (s *GoalService) finish(ctx context.Context, id uuid.UUID, status domain.GoalStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.goals[id]
	if !ok {
		return store.ErrNotFound
	}
	if g.Status.Terminal() {
		// Idempotent: re-finishing a settled goal produces no transition.
		return nil
	}
	now := time.Now()
	g.Status = status
	g.CompletedAt = &now
	if reason != "" {
		if g.Metadata == nil {
			g.Metadata = make(map[string]any)
		}
		g.Metadata["failure_reason"] = reason
	}

	s.propagateLocked(g, now)
	return s.persistLocked(ctx)
}

// propagateLocked applies the subgoal transition rules upward: a parent is
// achieved when all subgoals are achieved and failed when more than half of
// them fail. Already-settled parents are left alone.
func (s *GoalService) propagateLocked(child *domain.Goal, now time.Time) {
	if child.ParentGoalID == nil {
		return
	}
	parent, ok := s.goals[*child.ParentGoalID]
	if !ok || parent.Status.Terminal() || len(parent.SubGoalIDs) == 0 {
		return
	}

	achieved, failed := 0, 0
	for _, subID := range parent.SubGoalIDs {
		sub, ok := s.goals[subID]
		if !ok {
			continue
		}
		switch sub.Status {
		case domain.GoalAchieved:
			achieved++
		case domain.GoalFailed:
			failed++
		}
	}

	total := len(parent.SubGoalIDs)
	switch {
	case achieved == total:
		parent.Status = domain.GoalAchieved
		parent.CompletedAt = &now
	case failed*2 > total:
		parent.Status = domain.GoalFailed
		parent.CompletedAt = &now
	default:
		return
	}
	s.logger.Debug("goal settled by subgoal propagation",
		zap.String("goal_id", parent.ID.String()),
		zap.String("status", string(parent.Status)))
	s.propagateLocked(parent, now)
}

// AbandonGoal abandons a goal and cascades to its unfinished subgoals.
func (s *GoalService) AbandonGoal(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.goals[id]; !ok {
		return store.ErrNotFound
	}
	s.abandonLocked(id, time.Now())
	return s.persistLocked(ctx)
}

func (s *GoalService) abandonLocked(id uuid.UUID, now time.Time) {
	g, ok := s.goals[id]
	if !ok || g.Status.Terminal() {
		return
	}
	g.Status = domain.GoalAbandoned
	g.CompletedAt = &now
	for _, subID := range g.SubGoalIDs {
		s.abandonLocked(subID, now)
	}
}

// BlockGoal marks an active or in-progress goal blocked.
func (s *GoalService) BlockGoal(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.goals[id]
	if !ok {
		return store.ErrNotFound
	}
	if g.Status != domain.GoalActive && g.Status != domain.GoalInProgress {
		return fmt.Errorf("goal %s is %s and cannot be blocked", id, g.Status)
	}
	g.Status = domain.GoalBlocked
	return s.persistLocked(ctx)
}

// UnblockGoal returns a blocked goal to in_progress if it had been started,
// otherwise to active.
func (s *GoalService) UnblockGoal(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.goals[id]
	if !ok {
		return store.ErrNotFound
	}
	if g.Status != domain.GoalBlocked {
		return fmt.Errorf("goal %s is %s, not blocked", id, g.Status)
	}
	if g.StartedAt != nil {
		g.Status = domain.GoalInProgress
	} else {
		g.Status = domain.GoalActive
	}
	return s.persistLocked(ctx)
}

// GetNextGoal prefers a goal already in progress over the highest-scored
// active goal, to avoid context-thrashing. Never returns a settled goal.
func (s *GoalService) GetNextGoal() *domain.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	if g := s.bestByStatusLocked(domain.GoalInProgress, now); g != nil {
		return g
	}
	return s.bestByStatusLocked(domain.GoalActive, now)
}

func (s *GoalService) bestByStatusLocked(status domain.GoalStatus, now time.Time) *domain.Goal {
	var best *domain.Goal
	var bestScore float64
	for _, g := range s.goals {
		if g.Status != status {
			continue
		}
		score := effectiveScore(g, now)
		if best == nil || score > bestScore ||
			(score == bestScore && g.ID.String() < best.ID.String()) {
			best = g
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

// effectiveScore is priority plus an urgency boost that scales linearly from
// 0 to MaxUrgencyBoost as the deadline approaches within the 24-hour
// horizon. No deadline, or a deadline already passed, earns no boost.
func effectiveScore(g *domain.Goal, now time.Time) float64 {
	score := g.Priority
	if g.Deadline == nil {
		return score
	}
	remaining := g.Deadline.Sub(now)
	if remaining <= 0 || remaining >= UrgencyHorizon {
		return score
	}
	boost := MaxUrgencyBoost * (1 - remaining.Seconds()/UrgencyHorizon.Seconds())
	return score + boost
}

// CleanupStaleGoals abandons unfinished goals older than the TTL and trims
// the active set down to the cap, lowest priority first. Both outcomes are
// reported as counts, never errors.
func (s *GoalService) CleanupStaleGoals(ctx context.Context) (stale int, trimmed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-s.ttl)
	for _, g := range s.goals {
		if (g.Status == domain.GoalActive || g.Status == domain.GoalInProgress) && g.CreatedAt.Before(cutoff) {
			s.abandonLocked(g.ID, now)
			stale++
		}
	}

	var active []*domain.Goal
	for _, g := range s.goals {
		if g.Status == domain.GoalActive {
			active = append(active, g)
		}
	}
	if len(active) > s.maxActive {
		sort.Slice(active, func(i, j int) bool {
			if active[i].Priority != active[j].Priority {
				return active[i].Priority < active[j].Priority
			}
			return active[i].ID.String() < active[j].ID.String()
		})
		excess := len(active) - s.maxActive
		for i := 0; i < excess; i++ {
			s.abandonLocked(active[i].ID, now)
			trimmed++
		}
	}

	if stale > 0 || trimmed > 0 {
		s.logger.Info("cleaned up stale goals", zap.Int("stale", stale), zap.Int("trimmed", trimmed))
		if err := s.persistLocked(ctx); err != nil {
			s.logger.Warn("failed to persist goal cleanup", zap.Error(err))
		}
	}
	return stale, trimmed
}

// HasSimilarGoal reports whether an unfinished goal with a substring-similar
// description (either direction) already exists. Used to suppress redundant
// proactive goal spawning.
func (s *GoalService) HasSimilarGoal(description string, typ *domain.GoalType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := strings.ToLower(description)
	for _, g := range s.goals {
		if g.Status.Terminal() {
			continue
		}
		if typ != nil && g.Type != *typ {
			continue
		}
		existing := strings.ToLower(g.Description)
		if strings.Contains(existing, d) || strings.Contains(d, existing) {
			return true
		}
	}
	return false
}

func (s *GoalService) persistLocked(ctx context.Context) error {
	snap := goalSnapshot{Goals: make([]domain.Goal, 0, len(s.goals))}
	for _, g := range s.goals {
		snap.Goals = append(snap.Goals, *g)
	}
	sort.Slice(snap.Goals, func(i, j int) bool {
		return snap.Goals[i].ID.String() < snap.Goals[j].ID.String()
	})

	if err := s.snapshots.Save(ctx, domain.SnapshotGoalStore, snap); err != nil {
		return fmt.Errorf("failed to persist goal store: %w", err)
	}
	return nil
}
