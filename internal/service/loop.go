package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shivamSspirit/volition/internal/domain"
	"go.uber.org/zap"
)

// Cognitive loop constants
const (
	DefaultCycleCooldown = 10 * time.Second // Minimum time between cycles
	DefaultHourlyCap     = 100              // Maximum cycles per rolling hour

	RecentEventWindow      = 20 // Events retained across cycles
	EvaluateWindow         = 20 // Episodes scanned by evaluate
	ReflectWindow          = 50 // Episodes scanned by reflect
	ReflectFailureLookback = 5  // Recent failures that get a synthesized lesson

	ImmediateActionStrength  = 0.8 // Signal strength that demands immediate action
	ArbitrageTriggerPriority = 70.0
	WhaleTriggerPriority     = 60.0
	WhaleResearchScale       = 0.8
	LearnGoalPriority        = 40.0

	OverconfidenceCorrection   = 0.1 // Bias magnitude that earns a corrective belief
	CorrectiveBeliefConfidence = 0.8
	ReflectBeliefConfidence    = 0.9

	// Belief expiries per signal type
	ArbitrageBeliefTTL = 1 * time.Hour
	WhaleBeliefTTL     = 4 * time.Hour
	NewsBeliefTTL      = 12 * time.Hour
	PriceBeliefTTL     = 2 * time.Hour

	NewsConfidenceDiscount = 0.7

	DefaultStepTimeout = 30 * time.Second
	AlertStepTimeout   = 15 * time.Second
)

// LoopService is the orchestrating state machine that drives one cognitive
// cycle through its seven phases. Every phase persists its own side effects
// (through the underlying stores) before the next phase starts, so a crash
// mid-cycle leaves consistent, if incomplete, state.
//
// The loop assumes one external scheduler; the cycle lease additionally
// rejects concurrent invocations instead of racing them.
type LoopService struct {
	world  *WorldService
	goals  *GoalService
	memory *EpisodicService
	coord  *CoordinatorService
	skills domain.SkillExecutor
	logger *zap.Logger

	lease sync.Mutex // held for the duration of one cycle

	mu              sync.RWMutex
	lastCycle       time.Time
	cycleTimes      []time.Time
	recentEvents    []domain.Event
	lastCalibration float64
	lastReport      string

	cooldown  time.Duration
	hourlyCap int

	totalCycles    int64
	goalsAchieved  int64
	goalsFailed    int64
	totalCycleTime time.Duration
}

func NewLoopService(world *WorldService, goals *GoalService, memory *EpisodicService, coord *CoordinatorService, skills domain.SkillExecutor, logger *zap.Logger) *LoopService {
	return &LoopService{
		world:     world,
		goals:     goals,
		memory:    memory,
		coord:     coord,
		skills:    skills,
		logger:    logger,
		cooldown:  DefaultCycleCooldown,
		hourlyCap: DefaultHourlyCap,
	}
}

// SetCooldown overrides the minimum inter-cycle cooldown.
func (s *LoopService) SetCooldown(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldown = d
}

// SetHourlyCap overrides the hourly cycle cap.
func (s *LoopService) SetHourlyCap(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.hourlyCap = n
	}
}

func skipped(reason string) *domain.CycleResult {
	return &domain.CycleResult{Success: false, Summary: reason, StartedAt: time.Now()}
}

// RunCycle executes one cognitive cycle. It always returns a result: a
// skipped cycle when a guard rejects the invocation, a failure summary when
// a phase panics, a normal summary otherwise. Cycle errors never propagate
// to the host.
func (s *LoopService) RunCycle(ctx context.Context) (result *domain.CycleResult) {
	if !s.lease.TryLock() {
		return skipped("Cycle skipped: another cycle is running")
	}
	defer s.lease.Unlock()

	now := time.Now()
	s.mu.Lock()
	if !s.lastCycle.IsZero() && now.Sub(s.lastCycle) < s.cooldown {
		s.mu.Unlock()
		return skipped("Cycle skipped: cooldown period")
	}
	cutoff := now.Add(-time.Hour)
	kept := s.cycleTimes[:0]
	for _, t := range s.cycleTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.cycleTimes = kept
	if len(s.cycleTimes) >= s.hourlyCap {
		s.mu.Unlock()
		return skipped("Cycle skipped: hourly limit reached")
	}
	s.lastCycle = now
	s.cycleTimes = append(s.cycleTimes, now)
	s.mu.Unlock()

	result = &domain.CycleResult{StartedAt: now}
	var phase domain.Phase

	defer func() {
		if r := recover(); r != nil {
			// Systemic failure: state persisted so far is kept, the host
			// never crashes because of a cycle error.
			s.logger.Error("cognitive cycle failed",
				zap.String("phase", string(phase)),
				zap.Any("error", r))
			result.Success = false
			result.FailedPhase = phase
			result.Summary = fmt.Sprintf("Cycle failed during %s: %v", phase, r)
		}
		result.Duration = time.Since(now)
		s.mu.Lock()
		s.totalCycles++
		s.totalCycleTime += result.Duration
		s.mu.Unlock()
	}()

	phase = domain.PhasePerceive
	signals, events := s.perceive(ctx)
	result.SignalsSeen = len(signals)
	result.Events = len(events)

	phase = domain.PhaseUpdateBeliefs
	result.BeliefsCreated = s.updateBeliefs(ctx, signals)

	phase = domain.PhaseEvaluate
	s.evaluate(ctx)

	phase = domain.PhaseDeliberate
	goal, spawned := s.deliberate(ctx, events)
	result.GoalsSpawned = spawned
	if goal != nil {
		id := goal.ID
		result.SelectedGoalID = &id
	}

	phase = domain.PhasePlan
	plan := s.plan(goal)
	if plan != nil {
		result.PlanSteps = len(plan.Steps)
	}

	phase = domain.PhaseAct
	result.StepsExecuted = s.act(ctx, goal, plan)

	phase = domain.PhaseReflect
	s.reflect(ctx)

	result.Success = true
	if goal != nil {
		result.Summary = fmt.Sprintf("Cycle complete: %d signals, %d beliefs, pursued goal %q (%d/%d steps)",
			result.SignalsSeen, result.BeliefsCreated, goal.Description, result.StepsExecuted, result.PlanSteps)
	} else {
		result.Summary = fmt.Sprintf("Cycle complete: %d signals, %d beliefs, no goal selected",
			result.SignalsSeen, result.BeliefsCreated)
	}
	s.logger.Info("cognitive cycle complete",
		zap.Int("signals", result.SignalsSeen),
		zap.Int("beliefs", result.BeliefsCreated),
		zap.Int("goals_spawned", result.GoalsSpawned),
		zap.Duration("duration", result.Duration))
	return result
}

// perceive drains unprocessed signals into prioritized events and scans the
// world summary for the fixed context-change trigger phrases.
func (s *LoopService) perceive(ctx context.Context) ([]domain.Signal, []domain.Event) {
	signals := s.world.GetUnprocessedSignals()

	events := make([]domain.Event, 0, len(signals))
	for _, sig := range signals {
		events = append(events, domain.Event{
			ID:                      uuid.New(),
			SignalID:                sig.ID,
			Type:                    sig.Type,
			Content:                 sig.Content,
			Priority:                sig.Strength * 100,
			RequiresImmediateAction: sig.Strength > ImmediateActionStrength,
			Timestamp:               sig.Timestamp,
		})
	}

	// Keyword heuristic over the world digest, not semantic analysis.
	summary := s.world.Summary()
	var contextChanges []string
	if strings.Contains(summary, PhraseMarketMovement) {
		contextChanges = append(contextChanges, "market_shift")
	}
	if strings.Contains(summary, PhrasePositionRisk) {
		contextChanges = append(contextChanges, "position_risk")
	}
	if len(contextChanges) > 0 {
		s.logger.Info("context change detected", zap.Strings("changes", contextChanges))
	}

	s.mu.Lock()
	s.recentEvents = append(s.recentEvents, events...)
	if len(s.recentEvents) > RecentEventWindow {
		s.recentEvents = s.recentEvents[len(s.recentEvents)-RecentEventWindow:]
	}
	s.mu.Unlock()

	return signals, events
}

// updateBeliefs converts each signal into a belief per its type rule and
// marks it processed. Marking happens before belief creation so a failure
// can never cause a re-processing storm; forward progress is guaranteed.
func (s *LoopService) updateBeliefs(ctx context.Context, signals []domain.Signal) int {
	created := 0
	for _, sig := range signals {
		if err := s.world.MarkSignalProcessed(ctx, sig.ID); err != nil {
			s.logger.Warn("failed to mark signal processed",
				zap.String("signal_id", sig.ID.String()), zap.Error(err))
		}

		var content string
		var confidence float64
		var ttl time.Duration
		switch sig.Type {
		case domain.SignalArbitrageOpportunity:
			content = fmt.Sprintf("Arbitrage opportunity: %s", sig.Content)
			confidence = sig.Strength
			ttl = ArbitrageBeliefTTL
		case domain.SignalWhaleActivity:
			content = fmt.Sprintf("Whale activity observed: %s", sig.Content)
			confidence = sig.Strength
			ttl = WhaleBeliefTTL
		case domain.SignalNewsSentiment:
			content = fmt.Sprintf("News sentiment: %s", sig.Content)
			confidence = sig.Strength * NewsConfidenceDiscount
			ttl = NewsBeliefTTL
		case domain.SignalPriceMovement:
			content = fmt.Sprintf("Price movement: %s", sig.Content)
			confidence = sig.Strength
			ttl = PriceBeliefTTL
		default:
			continue
		}

		expiry := ttl
		if _, err := s.world.AddBelief(ctx, content, confidence, domain.SourceObservation, &expiry, []uuid.UUID{sig.ID}); err != nil {
			s.logger.Warn("failed to add belief from signal",
				zap.String("signal_id", sig.ID.String()), zap.Error(err))
			continue
		}
		created++
	}
	return created
}

// evaluate recomputes the calibration score, derives its delta against the
// previous cycle, and inserts a corrective belief when an overconfidence
// bias exceeds the correction threshold.
func (s *LoopService) evaluate(ctx context.Context) {
	calibration, resolved := s.world.CalibrationScore()

	s.mu.Lock()
	delta := calibration - s.lastCalibration
	s.lastCalibration = calibration
	s.mu.Unlock()

	if resolved > 0 {
		s.logger.Debug("calibration updated",
			zap.Float64("brier", calibration),
			zap.Float64("delta", delta),
			zap.Int("resolved", resolved))
	}

	for _, bias := range s.memory.DetectBiases(EvaluateWindow) {
		if bias.Type != domain.BiasOverconfidence || bias.Magnitude <= OverconfidenceCorrection {
			continue
		}
		content := fmt.Sprintf("Reduce prediction confidence by %.0f%%: %s",
			bias.Magnitude*100, bias.Description)
		if _, err := s.world.AddBelief(ctx, content, CorrectiveBeliefConfidence, domain.SourceInference, nil, nil); err != nil {
			s.logger.Warn("failed to add corrective belief", zap.Error(err))
		}
	}
}

// deliberate purges stale goals, applies the fixed event trigger rules, and
// selects exactly one goal to carry into planning.
func (s *LoopService) deliberate(ctx context.Context, events []domain.Event) (*domain.Goal, int) {
	s.goals.CleanupStaleGoals(ctx)

	spawned := 0
	for _, ev := range events {
		switch {
		case ev.Type == domain.SignalArbitrageOpportunity && ev.Priority > ArbitrageTriggerPriority:
			desc := fmt.Sprintf("Act on arbitrage opportunity: %s", ev.Content)
			typ := domain.GoalProactive
			if s.goals.HasSimilarGoal(desc, &typ) {
				continue
			}
			if _, err := s.goals.CreateProactiveGoal(ctx, desc, ev.Priority, string(ev.Type), WithSourceSignal(ev.SignalID)); err != nil {
				s.logger.Warn("failed to spawn proactive goal", zap.Error(err))
				continue
			}
			spawned++

		case ev.Type == domain.SignalWhaleActivity && ev.Priority > WhaleTriggerPriority:
			desc := fmt.Sprintf("Research whale movement: %s", ev.Content)
			if s.goals.HasSimilarGoal(desc, nil) {
				continue
			}
			if _, err := s.goals.CreateGoal(ctx, domain.GoalResearch, desc, ev.Priority*WhaleResearchScale, WithSourceSignal(ev.SignalID)); err != nil {
				s.logger.Warn("failed to spawn research goal", zap.Error(err))
				continue
			}
			spawned++

		case ev.Type == domain.SignalPredictionResolution:
			desc := fmt.Sprintf("Learn from prediction resolution: %s", ev.Content)
			if s.goals.HasSimilarGoal(desc, nil) {
				continue
			}
			if _, err := s.goals.CreateGoal(ctx, domain.GoalLearn, desc, LearnGoalPriority, WithSourceSignal(ev.SignalID)); err != nil {
				s.logger.Warn("failed to spawn learning goal", zap.Error(err))
				continue
			}
			spawned++
		}
	}

	goal := s.goals.GetNextGoal()
	if goal == nil {
		return nil, spawned
	}
	if goal.Status == domain.GoalActive {
		if err := s.goals.StartGoal(ctx, goal.ID); err != nil {
			s.logger.Warn("failed to start selected goal", zap.Error(err))
			return nil, spawned
		}
		goal.Status = domain.GoalInProgress
	}
	return goal, spawned
}

// plan builds the fixed step template for the selected goal's type. No plan
// is created when no goal was selected.
func (s *LoopService) plan(goal *domain.Goal) *domain.Plan {
	if goal == nil {
		return nil
	}

	step := func(skill string, timeout time.Duration, expected string, pre ...string) domain.PlanStep {
		return domain.PlanStep{
			ID:              uuid.New(),
			Skill:           skill,
			Params:          map[string]any{"goal_id": goal.ID.String(), "description": goal.Description},
			Preconditions:   pre,
			ExpectedOutcome: expected,
			AbortConditions: []string{"goal abandoned", "context no longer valid"},
			Timeout:         timeout,
			Status:          domain.StepPending,
		}
	}

	var steps []domain.PlanStep
	switch goal.Type {
	case domain.GoalTrade, domain.GoalProactive:
		steps = []domain.PlanStep{
			step("verify_opportunity", DefaultStepTimeout, "opportunity confirmed"),
			step("assess_risk", DefaultStepTimeout, "risk within tolerance", "verify_opportunity succeeded"),
			step("send_alert", AlertStepTimeout, "operator notified", "assess_risk succeeded"),
		}
	case domain.GoalResearch, domain.GoalMonitor:
		steps = []domain.PlanStep{
			step("gather_market_data", DefaultStepTimeout, "data collected"),
			step("analyze_data", DefaultStepTimeout, "analysis recorded", "gather_market_data succeeded"),
		}
	case domain.GoalLearn:
		steps = []domain.PlanStep{
			step("analyze_predictions", DefaultStepTimeout, "calibration measured"),
			step("update_memory", DefaultStepTimeout, "memory updated", "analyze_predictions succeeded"),
		}
	case domain.GoalAlert:
		steps = []domain.PlanStep{
			step("send_alert", AlertStepTimeout, "operator notified"),
		}
	case domain.GoalMaintain:
		steps = []domain.PlanStep{
			step("update_memory", DefaultStepTimeout, "memory maintained"),
		}
	default:
		steps = []domain.PlanStep{
			step("gather_market_data", DefaultStepTimeout, "data collected"),
		}
	}

	return &domain.Plan{
		ID:        uuid.New(),
		GoalID:    goal.ID,
		Steps:     steps,
		CreatedAt: time.Now(),
	}
}

// act executes plan steps strictly sequentially with per-step timeouts
// enforced at the skill-execution boundary. The first failed step skips the
// remainder and fails the goal; an episode is always recorded.
func (s *LoopService) act(ctx context.Context, goal *domain.Goal, plan *domain.Plan) int {
	if goal == nil || plan == nil {
		return 0
	}

	executed := 0
	failedStep := -1
	var failErr error
	for i := range plan.Steps {
		st := &plan.Steps[i]
		if failedStep >= 0 {
			st.Status = domain.StepSkipped
			continue
		}

		st.Status = domain.StepRunning
		stepCtx, cancel := context.WithTimeout(ctx, st.Timeout)
		res, err := s.skills.Execute(stepCtx, st.Skill, st.Params)
		cancel()
		executed++

		if err != nil {
			st.Status = domain.StepFailed
			st.Error = err.Error()
			failedStep = i
			failErr = err
			continue
		}
		st.Status = domain.StepCompleted
		st.Result = res
	}

	episode := domain.Episode{
		Context:       goal.Description,
		ActionTaken:   fmt.Sprintf("Executed %s plan for goal %q", goal.Type, goal.Description),
		RelatedGoalID: &goal.ID,
	}
	if raw, ok := goal.Metadata["signal_id"].(string); ok {
		if sigID, err := uuid.Parse(raw); err == nil {
			episode.Signals = []uuid.UUID{sigID}
		}
	}
	if failedStep >= 0 {
		episode.Outcome = domain.OutcomeFailure
	} else {
		episode.Outcome = domain.OutcomeSuccess
	}
	recorded, err := s.memory.RecordEpisode(ctx, episode)
	if err != nil {
		s.logger.Warn("failed to record episode", zap.Error(err))
	}

	if failedStep >= 0 {
		reason := fmt.Sprintf("plan step %d (%s) failed: %v", failedStep+1, plan.Steps[failedStep].Skill, failErr)
		if err := s.goals.FailGoal(ctx, goal.ID, reason); err != nil {
			s.logger.Warn("failed to fail goal", zap.Error(err))
		}
		s.mu.Lock()
		s.goalsFailed++
		s.mu.Unlock()
		if recorded != nil {
			lesson := fmt.Sprintf("Step %s failed for %s goals: %v",
				plan.Steps[failedStep].Skill, goal.Type, failErr)
			if err := s.memory.UpdateEpisodeOutcome(ctx, recorded.ID, domain.OutcomeFailure, lesson); err != nil {
				s.logger.Warn("failed to attach failure lesson", zap.Error(err))
			}
		}
	} else {
		if err := s.goals.AchieveGoal(ctx, goal.ID); err != nil {
			s.logger.Warn("failed to achieve goal", zap.Error(err))
		}
		s.mu.Lock()
		s.goalsAchieved++
		s.mu.Unlock()
	}
	return executed
}

// reflect re-runs pattern and bias analysis over a larger window,
// synthesizes lessons for recent unlessoned failures, inserts corrective
// beliefs for detected overconfidence, and refreshes the exported report.
func (s *LoopService) reflect(ctx context.Context) {
	s.memory.AnalyzePatterns(ReflectWindow)

	failures := 0
	recent := s.memory.RecentEpisodes(ReflectWindow)
	for i := len(recent) - 1; i >= 0 && failures < ReflectFailureLookback; i-- {
		ep := recent[i]
		if ep.Outcome != domain.OutcomeFailure {
			continue
		}
		failures++
		if ep.LessonLearned != "" {
			continue
		}
		lesson := fmt.Sprintf("Avoid repeating: %s (ended in failure)", ep.ActionTaken)
		if err := s.memory.UpdateEpisodeOutcome(ctx, ep.ID, domain.OutcomeFailure, lesson); err != nil {
			s.logger.Warn("failed to attach lesson to episode", zap.Error(err))
		}
	}

	for _, bias := range s.memory.DetectBiases(ReflectWindow) {
		if bias.Type != domain.BiasOverconfidence {
			continue
		}
		content := fmt.Sprintf("Apply confidence penalty of %.0f%% to predictions: %s",
			bias.Magnitude*100, bias.Description)
		if _, err := s.world.AddBelief(ctx, content, ReflectBeliefConfidence, domain.SourceInference, nil, nil); err != nil {
			s.logger.Warn("failed to add reflection belief", zap.Error(err))
		}
	}

	s.mu.Lock()
	s.lastReport = s.buildReportLocked()
	s.mu.Unlock()
}

func (s *LoopService) buildReportLocked() string {
	var sb strings.Builder
	sb.WriteString(s.world.Summary())
	sb.WriteString("\n")

	goals := s.goals.ListGoals()
	var active, inProgress, achieved, failed int
	for _, g := range goals {
		switch g.Status {
		case domain.GoalActive:
			active++
		case domain.GoalInProgress:
			inProgress++
		case domain.GoalAchieved:
			achieved++
		case domain.GoalFailed:
			failed++
		}
	}
	fmt.Fprintf(&sb, "Goals: %d active, %d in progress, %d achieved, %d failed.\n",
		active, inProgress, achieved, failed)

	episodes := s.memory.RecentEpisodes(0)
	lessons := s.memory.Lessons()
	fmt.Fprintf(&sb, "Memory: %d episodes, %d lessons.\n", len(episodes), len(lessons))
	fmt.Fprintf(&sb, "Cycles: %d total, calibration %.3f.", s.totalCycles, s.lastCalibration)
	return sb.String()
}

// StateSummary returns the human-readable export combining world, goal, and
// memory digests. Refreshed by reflect; computed on demand before the first
// cycle.
func (s *LoopService) StateSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReport == "" {
		s.lastReport = s.buildReportLocked()
	}
	return s.lastReport
}

// RecentEvents returns the bounded recent-event window.
func (s *LoopService) RecentEvents() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Event(nil), s.recentEvents...)
}

// Metrics returns the structured metrics snapshot.
func (s *LoopService) Metrics() domain.CycleMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := domain.CycleMetrics{
		TotalCycles:      s.totalCycles,
		GoalsAchieved:    s.goalsAchieved,
		GoalsFailed:      s.goalsFailed,
		CalibrationScore: s.lastCalibration,
	}
	if s.totalCycles > 0 {
		m.AverageCycleTime = s.totalCycleTime / time.Duration(s.totalCycles)
	}
	return m
}
