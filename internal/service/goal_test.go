package service

import (
	"context"
	"testing"
	"time"

	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/store"
)

func newTestGoals() *GoalService {
	return NewGoalService(store.NewInMemorySnapshotStore(), testLogger())
}

func TestGoalService_CreateGoal(t *testing.T) {
	svc := newTestGoals()
	ctx := context.Background()

	g, err := svc.CreateGoal(ctx, domain.GoalResearch, "research BTC order flow", 60)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if g.Status != domain.GoalActive {
		t.Fatalf("expected new goal to be active, got %s", g.Status)
	}
	if g.Priority != 60 {
		t.Fatalf("expected priority 60, got %f", g.Priority)
	}
}

func TestGoalService_CreateGoal_ClampsPriority(t *testing.T) {
	svc := newTestGoals()
	ctx := context.Background()

	g, err := svc.CreateGoal(ctx, domain.GoalMonitor, "watch the mempool", 150)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if g.Priority != 100 {
		t.Fatalf("expected priority clamped to 100, got %f", g.Priority)
	}
}

func TestGoalService_Lifecycle(t *testing.T) {
	svc := newTestGoals()
	ctx := context.Background()

	g, err := svc.CreateGoal(ctx, domain.GoalTrade, "execute the spread", 80)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := svc.StartGoal(ctx, g.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.AchieveGoal(ctx, g.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := svc.GetGoal(g.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Status != domain.GoalAchieved {
		t.Fatalf("expected achieved, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set")
	}

	// Terminal transitions are idempotent.
	if err := svc.FailGoal(ctx, g.ID, "too late"); err != nil {
		t.Fatalf("expected terminal transition to be a no-op, got %v", err)
	}
	got, _ = svc.GetGoal(g.ID)
	if got.Status != domain.GoalAchieved {
		t.Fatalf("expected status to remain achieved, got %s", got.Status)
	}
}

func TestGoalService_Decompose_PropagatesAchievement(t *testing.T) {
	svc := newTestGoals()
	ctx := context.Background()

	parent, err := svc.CreateGoal(ctx, domain.GoalResearch, "full market review", 70)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	subs, err := svc.DecomposeGoal(ctx, parent.ID, []SubgoalSpec{
		{Type: domain.GoalResearch, Description: "review BTC", Priority: 70},
		{Type: domain.GoalResearch, Description: "review ETH", Priority: 70},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subgoals, got %d", len(subs))
	}

	for _, sub := range subs {
		if err := svc.AchieveGoal(ctx, sub.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	got, _ := svc.GetGoal(parent.ID)
	if got.Status != domain.GoalAchieved {
		t.Fatalf("expected parent achieved after all subgoals, got %s", got.Status)
	}
}

func TestGoalService_Decompose_MajorityFailureFailsParent(t *testing.T) {
	svc := newTestGoals()
	ctx := context.Background()

	parent, _ := svc.CreateGoal(ctx, domain.GoalResearch, "cover three venues", 70)
	subs, err := svc.DecomposeGoal(ctx, parent.ID, []SubgoalSpec{
		{Type: domain.GoalResearch, Description: "venue a", Priority: 70},
		{Type: domain.GoalResearch, Description: "venue b", Priority: 70},
		{Type: domain.GoalResearch, Description: "venue c", Priority: 70},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_ = svc.FailGoal(ctx, subs[0].ID, "no data")
	got, _ := svc.GetGoal(parent.ID)
	if got.Status.Terminal() {
		t.Fatalf("expected parent unsettled at 1/3 failures, got %s", got.Status)
	}

	_ = svc.FailGoal(ctx, subs[1].ID, "no data")
	got, _ = svc.GetGoal(parent.ID)
	if got.Status != domain.GoalFailed {
		t.Fatalf("expected parent failed at 2/3 failures, got %s", got.Status)
	}
}

func TestGoalService_Abandon_Cascades(t *testing.T) {
	svc := newTestGoals()
	ctx := context.Background()

	parent, _ := svc.CreateGoal(ctx, domain.GoalMonitor, "watch the book", 50)
	subs, _ := svc.DecomposeGoal(ctx, parent.ID, []SubgoalSpec{
		{Type: domain.GoalMonitor, Description: "watch bids", Priority: 50},
		{Type: domain.GoalMonitor, Description: "watch asks", Priority: 50},
	})

	if err := svc.AbandonGoal(ctx, parent.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, sub := range subs {
		got, _ := svc.GetGoal(sub.ID)
		if got.Status != domain.GoalAbandoned {
			t.Fatalf("expected subgoal abandoned, got %s", got.Status)
		}
	}
}

func TestGoalService_BlockUnblock(t *testing.T) {
	svc := newTestGoals()
	ctx := context.Background()

	g, _ := svc.CreateGoal(ctx, domain.GoalTrade, "wait on liquidity", 40)
	_ = svc.StartGoal(ctx, g.ID)

	if err := svc.BlockGoal(ctx, g.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.UnblockGoal(ctx, g.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, _ := svc.GetGoal(g.ID)
	if got.Status != domain.GoalInProgress {
		t.Fatalf("expected started goal to resume in_progress, got %s", got.Status)
	}
}

func TestGoalService_GetNextGoal_PrefersInProgress(t *testing.T) {
	svc := newTestGoals()
	ctx := context.Background()

	low, _ := svc.CreateGoal(ctx, domain.GoalMonitor, "background watch", 10)
	_, _ = svc.CreateGoal(ctx, domain.GoalTrade, "high priority trade", 90)
	_ = svc.StartGoal(ctx, low.ID)

	next := svc.GetNextGoal()
	if next == nil {
		t.Fatal("expected a goal")
	}
	if next.ID != low.ID {
		t.Fatalf("expected the in-progress goal to be preferred, got %q", next.Description)
	}
}

func TestGoalService_GetNextGoal_UrgencyBoost(t *testing.T) {
	svc := newTestGoals()
	ctx := context.Background()

	_, _ = svc.CreateGoal(ctx, domain.GoalResearch, "no deadline", 60)
	urgent, _ := svc.CreateGoal(ctx, domain.GoalResearch, "due soon", 40,
		WithDeadline(time.Now().Add(1*time.Hour)))

	// 40 + 30*(1 - 1/24) ~ 68.75 beats 60.
	next := svc.GetNextGoal()
	if next == nil || next.ID != urgent.ID {
		t.Fatalf("expected near-deadline goal to win, got %+v", next)
	}
}

func TestGoalService_CleanupStaleGoals_TrimsToCap(t *testing.T) {
	svc := newTestGoals()
	svc.SetLimits(2, DefaultGoalTTL)
	ctx := context.Background()

	_, _ = svc.CreateGoal(ctx, domain.GoalMonitor, "goal one", 10)
	_, _ = svc.CreateGoal(ctx, domain.GoalMonitor, "goal two", 50)
	_, _ = svc.CreateGoal(ctx, domain.GoalMonitor, "goal three", 90)

	stale, trimmed := svc.CleanupStaleGoals(ctx)
	if stale != 0 {
		t.Fatalf("expected no stale goals, got %d", stale)
	}
	if trimmed != 1 {
		t.Fatalf("expected 1 trimmed goal, got %d", trimmed)
	}

	for _, g := range svc.ListGoals() {
		if g.Description == "goal one" && g.Status != domain.GoalAbandoned {
			t.Fatalf("expected lowest-priority goal abandoned, got %s", g.Status)
		}
	}
}

func TestGoalService_HasSimilarGoal(t *testing.T) {
	svc := newTestGoals()
	ctx := context.Background()

	_, _ = svc.CreateGoal(ctx, domain.GoalProactive, "act on arbitrage opportunity: BTC spread", 75)

	if !svc.HasSimilarGoal("arbitrage opportunity: BTC spread", nil) {
		t.Fatal("expected substring match to be similar")
	}
	typ := domain.GoalResearch
	if svc.HasSimilarGoal("arbitrage opportunity: BTC spread", &typ) {
		t.Fatal("expected type filter to exclude the proactive goal")
	}
	if svc.HasSimilarGoal("completely unrelated goal", nil) {
		t.Fatal("expected no match for unrelated description")
	}
}

func TestGoalService_Restore(t *testing.T) {
	snapshots := store.NewInMemorySnapshotStore()
	svc := NewGoalService(snapshots, testLogger())
	ctx := context.Background()

	g, err := svc.CreateGoal(ctx, domain.GoalLearn, "review prediction misses", 45)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	restored := NewGoalService(snapshots, testLogger())
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got, err := restored.GetGoal(g.ID)
	if err != nil {
		t.Fatalf("expected goal after restore, got %v", err)
	}
	if got.Description != "review prediction misses" {
		t.Fatalf("unexpected description %q", got.Description)
	}
}
