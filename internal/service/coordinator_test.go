package service

import (
	"context"
	"testing"
	"time"

	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/store"
)

func newTestCoordinator() (*CoordinatorService, *GoalService) {
	goals := NewGoalService(store.NewInMemorySnapshotStore(), testLogger())
	coord := NewCoordinatorService(goals, testLogger())
	for _, def := range DefaultAgentDefinitions() {
		coord.RegisterAgent(def)
	}
	return coord, goals
}

func TestCoordinatorService_SelectAgentForTask_Capabilities(t *testing.T) {
	coord, _ := newTestCoordinator()

	id, ok := coord.SelectAgentForTask("handle the spread", []string{"arbitrage", "risk_assessment"})
	if !ok {
		t.Fatal("expected an agent")
	}
	if id != "trader" {
		t.Fatalf("expected trader for arbitrage capabilities, got %s", id)
	}
}

func TestCoordinatorService_SelectAgentForTask_RoleKeywords(t *testing.T) {
	coord, _ := newTestCoordinator()

	id, ok := coord.SelectAgentForTask("research the whale wallet history", nil)
	if !ok {
		t.Fatal("expected an agent")
	}
	if id != "analyst" {
		t.Fatalf("expected analyst for research task, got %s", id)
	}
}

func TestCoordinatorService_SelectAgentForTask_SkipsOffline(t *testing.T) {
	coord, _ := newTestCoordinator()

	if err := coord.SetAgentStatus("trader", domain.AgentOffline); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	id, ok := coord.SelectAgentForTask("execute the arbitrage trade", []string{"arbitrage"})
	if !ok {
		t.Fatal("expected a fallback agent")
	}
	if id == "trader" {
		t.Fatal("expected offline trader to be skipped")
	}
}

func TestCoordinatorService_DelegateGoal(t *testing.T) {
	coord, goals := newTestCoordinator()
	ctx := context.Background()

	goal, agentID, err := coord.DelegateGoal(ctx, domain.GoalTrade, "execute arbitrage on BTC", 80, []string{"arbitrage"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if agentID != "trader" {
		t.Fatalf("expected trader assignment, got %s", agentID)
	}

	got, err := goals.GetGoal(goal.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Status != domain.GoalInProgress {
		t.Fatalf("expected delegated goal in_progress, got %s", got.Status)
	}

	msgs := coord.PendingMessages("trader")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 task_request message, got %d", len(msgs))
	}
	if msgs[0].Type != domain.MessageTaskRequest {
		t.Fatalf("expected task_request, got %s", msgs[0].Type)
	}
}

func TestCoordinatorService_DelegateGoal_CapacityOverflow(t *testing.T) {
	coord, _ := newTestCoordinator()
	ctx := context.Background()

	// Trader takes 2 concurrent goals; the third must overflow elsewhere.
	for i := 0; i < 2; i++ {
		_, agentID, err := coord.DelegateGoal(ctx, domain.GoalTrade, "execute arbitrage leg", 80, []string{"arbitrage"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if agentID != "trader" {
			t.Fatalf("expected trader, got %s", agentID)
		}
	}

	_, agentID, err := coord.DelegateGoal(ctx, domain.GoalTrade, "execute arbitrage leg", 80, []string{"arbitrage"})
	if err != nil {
		t.Fatalf("expected overflow to an alternative agent, got %v", err)
	}
	if agentID == "trader" {
		t.Fatal("expected trader at capacity to be skipped")
	}
}

func TestCoordinatorService_ReportGoalCompletion(t *testing.T) {
	coord, goals := newTestCoordinator()
	ctx := context.Background()

	goal, agentID, err := coord.DelegateGoal(ctx, domain.GoalResearch, "research funding rates", 60, []string{"research"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := coord.ReportGoalCompletion(ctx, agentID, goal.ID, true, "report filed"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, _ := goals.GetGoal(goal.ID)
	if got.Status != domain.GoalAchieved {
		t.Fatalf("expected achieved, got %s", got.Status)
	}

	for _, a := range coord.Agents() {
		if a.ID != agentID {
			continue
		}
		if a.Metrics.TasksCompleted != 1 {
			t.Fatalf("expected 1 completed task, got %d", a.Metrics.TasksCompleted)
		}
		if a.Status != domain.AgentIdle {
			t.Fatalf("expected agent back to idle, got %s", a.Status)
		}
	}
}

func TestCoordinatorService_Messages(t *testing.T) {
	coord, _ := newTestCoordinator()

	deadline := time.Now().Add(-1 * time.Minute)
	coord.SendMessage(domain.AgentMessage{
		From: "scout", To: "analyst",
		Type: domain.MessageBeliefShare, Content: "whale moved 500 BTC",
	})
	coord.SendMessage(domain.AgentMessage{
		From: "scout", To: "analyst",
		Type: domain.MessageTaskRequest, Content: "expired request",
		ResponseDeadline: &deadline,
	})

	msgs := coord.PendingMessages("analyst")
	if len(msgs) != 1 {
		t.Fatalf("expected expired message filtered, got %d messages", len(msgs))
	}

	if err := coord.AcknowledgeMessage(msgs[0].ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := coord.PendingMessages("analyst"); len(got) != 0 {
		t.Fatalf("expected no pending messages after ack, got %d", len(got))
	}

	if removed := coord.ExpireMessages(); removed != 2 {
		t.Fatalf("expected 2 messages removed, got %d", removed)
	}
}

func TestCoordinatorService_ConflictResolution_PriorityWins(t *testing.T) {
	coord, goals := newTestCoordinator()
	ctx := context.Background()

	// Give the trader a completed-task record so it outranks the scout.
	tradeGoal, _, err := coord.DelegateGoal(ctx, domain.GoalTrade, "execute arbitrage warmup", 50, []string{"arbitrage"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := coord.ReportGoalCompletion(ctx, "trader", tradeGoal.ID, true, "done"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Force a double claim.
	disputed, _ := goals.CreateGoal(ctx, domain.GoalTrade, "disputed trade", 70)
	for _, id := range []string{"scout", "trader"} {
		a := coord.agents[id]
		a.CurrentGoals = append(a.CurrentGoals, disputed.ID)
	}

	conflicts := coord.DetectConflicts()
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}

	res, err := coord.ResolveConflict(ctx, conflicts[0], domain.PolicyPriorityWins)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Winner != "trader" {
		t.Fatalf("expected trader to win on completed tasks, got %s", res.Winner)
	}
	if got := coord.DetectConflicts(); len(got) != 0 {
		t.Fatalf("expected conflict cleared, got %d", len(got))
	}
}

func TestCoordinatorService_ConflictResolution_Abandon(t *testing.T) {
	coord, goals := newTestCoordinator()
	ctx := context.Background()

	disputed, _ := goals.CreateGoal(ctx, domain.GoalTrade, "contested goal", 70)
	for _, id := range []string{"scout", "trader"} {
		a := coord.agents[id]
		a.CurrentGoals = append(a.CurrentGoals, disputed.ID)
	}

	conflicts := coord.DetectConflicts()
	if _, err := coord.ResolveConflict(ctx, conflicts[0], domain.PolicyAbandon); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, _ := goals.GetGoal(disputed.ID)
	if got.Status != domain.GoalAbandoned {
		t.Fatalf("expected abandoned, got %s", got.Status)
	}
}

func TestCoordinatorService_ConflictResolution_Escalate(t *testing.T) {
	coord, goals := newTestCoordinator()
	ctx := context.Background()

	disputed, _ := goals.CreateGoal(ctx, domain.GoalResearch, "contested research", 50)
	for _, id := range []string{"scout", "analyst"} {
		a := coord.agents[id]
		a.CurrentGoals = append(a.CurrentGoals, disputed.ID)
	}

	conflicts := coord.DetectConflicts()
	if _, err := coord.ResolveConflict(ctx, conflicts[0], domain.PolicyEscalate); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := coord.Escalations(); len(got) != 1 {
		t.Fatalf("expected 1 escalation, got %d", len(got))
	}
}

func TestCoordinatorService_RecoverStuckAgents(t *testing.T) {
	coord, _ := newTestCoordinator()
	coord.SetStuckThreshold(1 * time.Millisecond)
	ctx := context.Background()

	goal, agentID, err := coord.DelegateGoal(ctx, domain.GoalResearch, "research the orderbook imbalance", 60, []string{"research"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Let the agent's last activity fall past the threshold.
	coord.agents[agentID].LastActivity = time.Now().Add(-1 * time.Second)

	recovered := coord.RecoverStuckAgents(ctx)
	if recovered != 1 {
		t.Fatalf("expected 1 recovered agent, got %d", recovered)
	}

	for _, a := range coord.Agents() {
		if a.ID == agentID {
			if a.Status != domain.AgentBlocked {
				t.Fatalf("expected stuck agent blocked, got %s", a.Status)
			}
			if len(a.CurrentGoals) != 0 {
				t.Fatal("expected goals reassigned away from the stuck agent")
			}
		}
	}

	// The goal must now live with some other agent.
	held := false
	for _, a := range coord.Agents() {
		if a.ID == agentID {
			continue
		}
		for _, id := range a.CurrentGoals {
			if id == goal.ID {
				held = true
			}
		}
	}
	if !held {
		t.Fatal("expected the goal to be reassigned to another agent")
	}
}
