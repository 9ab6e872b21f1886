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

// Coordination constants
const (
	StuckAgentThreshold = 5 * time.Minute // Working with no activity beyond this is stuck

	capabilityMatchWeight = 10.0
	roleKeywordWeight     = 5.0
	loadPenaltyWeight     = 5.0
	idleBonusWeight       = 3.0

	OrchestratorID = "orchestrator"
)

// roleKeywords drive the role/keyword heuristic in task selection.
var roleKeywords = map[domain.AgentRole][]string{
	domain.RoleScout:        {"scan", "monitor", "watch", "detect"},
	domain.RoleAnalyst:      {"research", "analy", "predict", "evaluate"},
	domain.RoleTrader:       {"trade", "arbitrage", "risk", "execute"},
	domain.RoleOrchestrator: {"coordinate", "plan", "delegate"},
}

// DefaultAgentDefinitions returns the static specialist roster registered at
// startup.
func DefaultAgentDefinitions() []domain.AgentDefinition {
	return []domain.AgentDefinition{
		{ID: "scout", Role: domain.RoleScout, ModelTier: "fast", MaxConcurrentGoals: 3,
			Capabilities: []string{"market_scan", "signal_detection", "data_gathering"}},
		{ID: "analyst", Role: domain.RoleAnalyst, ModelTier: "standard", MaxConcurrentGoals: 2,
			Capabilities: []string{"analysis", "research", "prediction"}},
		{ID: "trader", Role: domain.RoleTrader, ModelTier: "standard", MaxConcurrentGoals: 2,
			Capabilities: []string{"trade_execution", "risk_assessment", "arbitrage"}},
		{ID: OrchestratorID, Role: domain.RoleOrchestrator, ModelTier: "premium", MaxConcurrentGoals: 5,
			Capabilities: []string{"coordination", "planning", "delegation"}},
	}
}

// CoordinatorService assigns goals to named specialist agents, passes
// messages between them, and detects and resolves assignment conflicts.
// Agent state is rebuilt from the static roster at startup; only the goals
// themselves are persisted, via the goal manager.
type CoordinatorService struct {
	goals  *GoalService
	logger *zap.Logger

	mu          sync.RWMutex
	defs        map[string]domain.AgentDefinition
	agents      map[string]*domain.AgentState
	messages    []domain.AgentMessage
	escalations []domain.Conflict

	stuckThreshold time.Duration
}

func NewCoordinatorService(goals *GoalService, logger *zap.Logger) *CoordinatorService {
	return &CoordinatorService{
		goals:          goals,
		logger:         logger,
		defs:           make(map[string]domain.AgentDefinition),
		agents:         make(map[string]*domain.AgentState),
		stuckThreshold: StuckAgentThreshold,
	}
}

// SetStuckThreshold overrides the stuck-agent inactivity threshold.
func (s *CoordinatorService) SetStuckThreshold(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stuckThreshold = d
}

// RegisterAgent adds an agent to the roster in idle status.
func (s *CoordinatorService) RegisterAgent(def domain.AgentDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.defs[def.ID] = def
	s.agents[def.ID] = &domain.AgentState{
		ID:           def.ID,
		Role:         def.Role,
		Status:       domain.AgentIdle,
		LastActivity: time.Now(),
	}
}

// SetAgentStatus changes an agent's status; offline agents are excluded from
// task selection until they opt back in.
func (s *CoordinatorService) SetAgentStatus(id string, status domain.AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = status
	a.LastActivity = time.Now()
	return nil
}

// Agents returns a snapshot of all agent states, ordered by id.
func (s *CoordinatorService) Agents() []domain.AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AgentState, 0, len(s.agents))
	for _, a := range s.agents {
		cp := *a
		cp.CurrentGoals = append([]uuid.UUID(nil), a.CurrentGoals...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SelectAgentForTask scores every non-offline agent against the task and
// returns the id of the highest scorer. Ties break on the lexically
// smallest id so selection is deterministic.
func (s *CoordinatorService) SelectAgentForTask(description string, capabilities []string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectLocked(description, capabilities, nil)
}

func (s *CoordinatorService) selectLocked(description string, capabilities []string, exclude map[string]bool) (string, bool) {
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bestID := ""
	bestScore := 0.0
	found := false
	for _, id := range ids {
		a := s.agents[id]
		if a.Status == domain.AgentOffline || exclude[id] {
			continue
		}
		score := s.scoreLocked(a, description, capabilities)
		if !found || score > bestScore {
			found = true
			bestID = id
			bestScore = score
		}
	}
	return bestID, found
}

func (s *CoordinatorService) scoreLocked(a *domain.AgentState, description string, capabilities []string) float64 {
	def := s.defs[a.ID]

	matches := 0
	for _, want := range capabilities {
		for _, have := range def.Capabilities {
			if want == have {
				matches++
				break
			}
		}
	}
	score := capabilityMatchWeight * float64(matches)

	d := strings.ToLower(description)
	for _, kw := range roleKeywords[a.Role] {
		if strings.Contains(d, kw) {
			score += roleKeywordWeight
			break
		}
	}

	if def.MaxConcurrentGoals > 0 {
		score -= loadPenaltyWeight * float64(len(a.CurrentGoals)) / float64(def.MaxConcurrentGoals)
	}
	if a.Status == domain.AgentIdle {
		score += idleBonusWeight
	}
	return score
}

// DelegateGoal creates a goal, assigns it to the best-scoring agent, and
// emits a task_request message. If the chosen agent is at capacity, a single
// alternative agent with spare capacity is tried before failing.
func (s *CoordinatorService) DelegateGoal(ctx context.Context, typ domain.GoalType, description string, priority float64, capabilities []string) (*domain.Goal, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agentID, ok := s.selectLocked(description, capabilities, nil)
	if !ok {
		return nil, "", fmt.Errorf("no agent available for task %q", description)
	}
	if s.atCapacityLocked(agentID) {
		alt, ok := s.selectLocked(description, capabilities, map[string]bool{agentID: true})
		if !ok || s.atCapacityLocked(alt) {
			return nil, "", fmt.Errorf("all candidate agents at capacity for task %q", description)
		}
		agentID = alt
	}

	goal, err := s.goals.CreateGoal(ctx, typ, description, priority)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create delegated goal: %w", err)
	}
	if err := s.goals.StartGoal(ctx, goal.ID); err != nil {
		return nil, "", fmt.Errorf("failed to start delegated goal: %w", err)
	}

	a := s.agents[agentID]
	a.CurrentGoals = append(a.CurrentGoals, goal.ID)
	a.Status = domain.AgentWorking
	a.LastActivity = time.Now()

	s.enqueueLocked(domain.AgentMessage{
		From:             OrchestratorID,
		To:               agentID,
		Type:             domain.MessageTaskRequest,
		Content:          description,
		Payload:          map[string]any{"goal_id": goal.ID.String(), "priority": priority},
		RequiresResponse: true,
	})

	s.logger.Info("goal delegated",
		zap.String("goal_id", goal.ID.String()),
		zap.String("agent_id", agentID))
	return goal, agentID, nil
}

func (s *CoordinatorService) atCapacityLocked(agentID string) bool {
	def := s.defs[agentID]
	a := s.agents[agentID]
	return def.MaxConcurrentGoals > 0 && len(a.CurrentGoals) >= def.MaxConcurrentGoals
}

// ReportGoalCompletion removes the goal from the agent's active set, updates
// its cumulative counters, resolves the goal, and emits a task_response.
func (s *CoordinatorService) ReportGoalCompletion(ctx context.Context, agentID string, goalID uuid.UUID, success bool, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agentID]
	if !ok {
		return store.ErrNotFound
	}

	removed := false
	for i, id := range a.CurrentGoals {
		if id == goalID {
			a.CurrentGoals = append(a.CurrentGoals[:i], a.CurrentGoals[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		return fmt.Errorf("goal %s is not assigned to agent %s", goalID, agentID)
	}

	now := time.Now()
	total := a.Metrics.TasksCompleted + a.Metrics.TasksFailed
	if goal, err := s.goals.GetGoal(goalID); err == nil && goal.StartedAt != nil {
		elapsed := now.Sub(*goal.StartedAt)
		a.Metrics.AverageResponseTime = time.Duration(
			(int64(a.Metrics.AverageResponseTime)*int64(total) + int64(elapsed)) / int64(total+1))
	}
	if success {
		a.Metrics.TasksCompleted++
	} else {
		a.Metrics.TasksFailed++
	}
	a.LastActivity = now
	if len(a.CurrentGoals) == 0 {
		a.Status = domain.AgentIdle
	}

	var err error
	if success {
		err = s.goals.AchieveGoal(ctx, goalID)
	} else {
		err = s.goals.FailGoal(ctx, goalID, detail)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve goal %s: %w", goalID, err)
	}

	s.enqueueLocked(domain.AgentMessage{
		From:    agentID,
		To:      OrchestratorID,
		Type:    domain.MessageTaskResponse,
		Content: detail,
		Payload: map[string]any{"goal_id": goalID.String(), "success": success},
	})
	return nil
}

// SendMessage queues a message between agents.
func (s *CoordinatorService) SendMessage(msg domain.AgentMessage) domain.AgentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(msg)
}

func (s *CoordinatorService) enqueueLocked(msg domain.AgentMessage) domain.AgentMessage {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.messages = append(s.messages, msg)
	return msg
}

// PendingMessages returns unacknowledged, unexpired messages for an agent.
func (s *CoordinatorService) PendingMessages(agentID string) []domain.AgentMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var out []domain.AgentMessage
	for _, m := range s.messages {
		if m.To != agentID || m.Acknowledged {
			continue
		}
		if m.ResponseDeadline != nil && now.After(*m.ResponseDeadline) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// AcknowledgeMessage marks a message handled.
func (s *CoordinatorService) AcknowledgeMessage(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Acknowledged = true
			return nil
		}
	}
	return store.ErrNotFound
}

// ExpireMessages drops acknowledged messages and those past their response
// deadline, returning the number removed.
func (s *CoordinatorService) ExpireMessages() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	kept := s.messages[:0]
	removed := 0
	for _, m := range s.messages {
		expired := m.ResponseDeadline != nil && now.After(*m.ResponseDeadline)
		if m.Acknowledged || expired {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return removed
}

// DetectConflicts reports every goal id present in more than one agent's
// active set.
func (s *CoordinatorService) DetectConflicts() []domain.Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	claims := make(map[uuid.UUID][]string)
	for _, a := range s.agents {
		for _, goalID := range a.CurrentGoals {
			claims[goalID] = append(claims[goalID], a.ID)
		}
	}

	var conflicts []domain.Conflict
	for goalID, agentIDs := range claims {
		if len(agentIDs) < 2 {
			continue
		}
		sort.Strings(agentIDs)
		conflicts = append(conflicts, domain.Conflict{GoalID: goalID, AgentIDs: agentIDs})
	}
	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].GoalID.String() < conflicts[j].GoalID.String()
	})
	return conflicts
}

// ResolveConflict applies a resolution policy to a detected conflict.
func (s *CoordinatorService) ResolveConflict(ctx context.Context, c domain.Conflict, policy domain.ConflictPolicy) (*domain.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &domain.Resolution{Conflict: c, Policy: policy}
	switch policy {
	case domain.PolicyPriorityWins:
		// The agent with more completed tasks keeps the goal; ties go to
		// the lexically smallest id.
		winner := ""
		best := -1
		for _, id := range c.AgentIDs {
			a, ok := s.agents[id]
			if !ok {
				continue
			}
			if a.Metrics.TasksCompleted > best ||
				(a.Metrics.TasksCompleted == best && (winner == "" || id < winner)) {
				winner = id
				best = a.Metrics.TasksCompleted
			}
		}
		if winner == "" {
			return nil, fmt.Errorf("no known agents in conflict for goal %s", c.GoalID)
		}
		for _, id := range c.AgentIDs {
			if id != winner {
				s.dropGoalLocked(id, c.GoalID)
			}
		}
		res.Winner = winner
		res.Note = fmt.Sprintf("goal retained by %s (%d tasks completed)", winner, best)

	case domain.PolicyNegotiation:
		// Records a compromise; no automatic state change.
		res.Note = fmt.Sprintf("agents %s agreed to split work on goal %s",
			strings.Join(c.AgentIDs, ", "), c.GoalID)

	case domain.PolicyEscalate:
		s.escalations = append(s.escalations, c)
		res.Note = "queued for external review"

	case domain.PolicyAbandon:
		for _, id := range c.AgentIDs {
			s.dropGoalLocked(id, c.GoalID)
		}
		if err := s.goals.AbandonGoal(ctx, c.GoalID); err != nil && err != store.ErrNotFound {
			return nil, fmt.Errorf("failed to abandon conflicted goal: %w", err)
		}
		res.Note = "goal abandoned by all parties"

	default:
		return nil, fmt.Errorf("unknown conflict policy %q", policy)
	}

	for _, id := range c.AgentIDs {
		s.enqueueLocked(domain.AgentMessage{
			From:    OrchestratorID,
			To:      id,
			Type:    domain.MessageConflictResolution,
			Content: res.Note,
			Payload: map[string]any{"goal_id": c.GoalID.String(), "policy": string(policy)},
		})
	}
	s.logger.Info("conflict resolved",
		zap.String("goal_id", c.GoalID.String()),
		zap.String("policy", string(policy)),
		zap.String("winner", res.Winner))
	return res, nil
}

// Escalations returns conflicts queued for external review.
func (s *CoordinatorService) Escalations() []domain.Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Conflict(nil), s.escalations...)
}

func (s *CoordinatorService) dropGoalLocked(agentID string, goalID uuid.UUID) {
	a, ok := s.agents[agentID]
	if !ok {
		return
	}
	for i, id := range a.CurrentGoals {
		if id == goalID {
			a.CurrentGoals = append(a.CurrentGoals[:i], a.CurrentGoals[i+1:]...)
			break
		}
	}
	if len(a.CurrentGoals) == 0 && a.Status == domain.AgentWorking {
		a.Status = domain.AgentIdle
	}
}

// RecoverStuckAgents marks working agents with no recent activity as
// blocked and reassigns their goals. Goals that cannot be reassigned stay
// with the blocked agent until the next reconciliation pass. Returns the
// number of agents recovered.
func (s *CoordinatorService) RecoverStuckAgents(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	recovered := 0
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		a := s.agents[id]
		if a.Status != domain.AgentWorking || now.Sub(a.LastActivity) < s.stuckThreshold {
			continue
		}
		a.Status = domain.AgentBlocked
		recovered++
		s.logger.Warn("agent stuck, reassigning goals",
			zap.String("agent_id", id),
			zap.Int("goals", len(a.CurrentGoals)))

		remaining := a.CurrentGoals[:0]
		for _, goalID := range a.CurrentGoals {
			goal, err := s.goals.GetGoal(goalID)
			if err != nil {
				continue
			}
			target, ok := s.selectLocked(goal.Description, nil, map[string]bool{id: true})
			if !ok || s.atCapacityLocked(target) || s.agents[target].Status == domain.AgentBlocked {
				remaining = append(remaining, goalID)
				continue
			}
			t := s.agents[target]
			t.CurrentGoals = append(t.CurrentGoals, goalID)
			t.Status = domain.AgentWorking
			t.LastActivity = now
			s.enqueueLocked(domain.AgentMessage{
				From:             OrchestratorID,
				To:               target,
				Type:             domain.MessageTaskRequest,
				Content:          goal.Description,
				Payload:          map[string]any{"goal_id": goalID.String(), "reassigned_from": id},
				RequiresResponse: true,
			})
		}
		a.CurrentGoals = remaining
	}
	return recovered
}
