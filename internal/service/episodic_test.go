package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/store"
)

func newTestMemory() *EpisodicService {
	return NewEpisodicService(store.NewInMemorySnapshotStore(), testLogger())
}

func TestEpisodicService_RecordEpisode(t *testing.T) {
	svc := newTestMemory()
	ctx := context.Background()

	ep, err := svc.RecordEpisode(ctx, domain.Episode{
		Context:     "arbitrage window on BTC",
		ActionTaken: "executed arbitrage trade",
		Outcome:     domain.OutcomePending,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ep.ID.String() == "" {
		t.Fatal("expected episode ID to be set")
	}
	if got := svc.RecentEpisodes(0); len(got) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(got))
	}
}

func TestEpisodicService_BoundedEpisodes(t *testing.T) {
	svc := newTestMemory()
	svc.SetCapacity(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.RecordEpisode(ctx, domain.Episode{
			Context:     fmt.Sprintf("episode %d", i),
			ActionTaken: "monitor",
			Outcome:     domain.OutcomeSuccess,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	got := svc.RecentEpisodes(0)
	if len(got) != 3 {
		t.Fatalf("expected 3 episodes after trim, got %d", len(got))
	}
	if got[0].Context != "episode 2" {
		t.Fatalf("expected oldest episodes dropped, got %q first", got[0].Context)
	}
}

func TestEpisodicService_UpdateOutcome_SynthesizesLesson(t *testing.T) {
	svc := newTestMemory()
	ctx := context.Background()

	ep, _ := svc.RecordEpisode(ctx, domain.Episode{
		Context:     "thin liquidity",
		ActionTaken: "sell into the book",
		Outcome:     domain.OutcomePending,
	})

	err := svc.UpdateEpisodeOutcome(ctx, ep.ID, domain.OutcomeFailure, "avoid selling into thin books")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	lessons := svc.Lessons()
	if len(lessons) != 1 {
		t.Fatalf("expected 1 lesson, got %d", len(lessons))
	}
	if lessons[0].Confidence != InitialLessonConfidence {
		t.Fatalf("expected initial confidence %f, got %f", InitialLessonConfidence, lessons[0].Confidence)
	}
}

func TestEpisodicService_LessonMergeStrengthens(t *testing.T) {
	svc := newTestMemory()
	ctx := context.Background()

	if _, err := svc.CreateLesson(ctx, "avoid trading during low volume", "trading", nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := svc.CreateLesson(ctx, "avoid trading during low volume", "trading", nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	lessons := svc.Lessons()
	if len(lessons) != 1 {
		t.Fatalf("expected duplicate lesson to merge, got %d lessons", len(lessons))
	}
	want := InitialLessonConfidence + LessonMergeBoost
	if lessons[0].Confidence != want {
		t.Fatalf("expected confidence %f after merge, got %f", want, lessons[0].Confidence)
	}
}

func TestEpisodicService_GetRelevantLessons(t *testing.T) {
	svc := newTestMemory()
	ctx := context.Background()

	_, _ = svc.CreateLesson(ctx, "verify liquidity before arbitrage", "arbitrage execution", nil)
	_, _ = svc.CreateLesson(ctx, "rotate API keys quarterly", "operations", nil)

	lessons, err := svc.GetRelevantLessons(ctx, "planning an arbitrage execution on BTC", 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(lessons) != 1 {
		t.Fatalf("expected only the matching lesson, got %d", len(lessons))
	}
	if lessons[0].TimesApplied != 1 {
		t.Fatalf("expected usage counter bumped, got %d", lessons[0].TimesApplied)
	}
	if lessons[0].LastApplied == nil {
		t.Fatal("expected LastApplied to be set")
	}
}

func TestEpisodicService_AnalyzePatterns(t *testing.T) {
	svc := newTestMemory()
	ctx := context.Background()

	outcomes := []domain.OutcomeType{
		domain.OutcomeSuccess, domain.OutcomeSuccess, domain.OutcomeFailure,
	}
	for _, o := range outcomes {
		_, _ = svc.RecordEpisode(ctx, domain.Episode{
			Context:     "market hours",
			ActionTaken: "executed trade",
			Outcome:     o,
		})
	}
	// Below the occurrence floor, should not produce a pattern.
	_, _ = svc.RecordEpisode(ctx, domain.Episode{
		Context:     "market hours",
		ActionTaken: "sent alert",
		Outcome:     domain.OutcomeSuccess,
	})

	patterns := svc.AnalyzePatterns(0)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	if patterns[0].ActionType != "trading" {
		t.Fatalf("expected trading pattern, got %s", patterns[0].ActionType)
	}
	if patterns[0].SuccessRate < 0.66 || patterns[0].SuccessRate > 0.67 {
		t.Fatalf("expected success rate ~0.67, got %f", patterns[0].SuccessRate)
	}
}

func TestEpisodicService_DetectOverconfidence(t *testing.T) {
	svc := newTestMemory()
	ctx := context.Background()

	// 3 of 5 prediction episodes fail: failure rate 0.6, magnitude 0.2.
	outcomes := []domain.OutcomeType{
		domain.OutcomeFailure, domain.OutcomeFailure, domain.OutcomeFailure,
		domain.OutcomeSuccess, domain.OutcomeSuccess,
	}
	for _, o := range outcomes {
		_, _ = svc.RecordEpisode(ctx, domain.Episode{
			Context:     "weekly forecast",
			ActionTaken: "predicted price direction",
			Outcome:     o,
		})
	}

	biases := svc.DetectBiases(0)
	var found *domain.Bias
	for i := range biases {
		if biases[i].Type == domain.BiasOverconfidence {
			found = &biases[i]
		}
	}
	if found == nil {
		t.Fatal("expected an overconfidence bias")
	}
	if found.Magnitude < 0.19 || found.Magnitude > 0.21 {
		t.Fatalf("expected magnitude ~0.2, got %f", found.Magnitude)
	}
}

func TestEpisodicService_NoOverconfidenceBelowMinSample(t *testing.T) {
	svc := newTestMemory()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = svc.RecordEpisode(ctx, domain.Episode{
			Context:     "forecast",
			ActionTaken: "predicted outcome",
			Outcome:     domain.OutcomeFailure,
		})
	}

	for _, b := range svc.DetectBiases(0) {
		if b.Type == domain.BiasOverconfidence {
			t.Fatal("expected no overconfidence flag below the minimum sample")
		}
	}
}

func TestEpisodicService_Restore(t *testing.T) {
	snapshots := store.NewInMemorySnapshotStore()
	svc := NewEpisodicService(snapshots, testLogger())
	ctx := context.Background()

	_, _ = svc.RecordEpisode(ctx, domain.Episode{
		Context:     "persisted context",
		ActionTaken: "monitored",
		Outcome:     domain.OutcomeSuccess,
	})
	_, _ = svc.CreateLesson(ctx, "persisted lesson", "testing", nil)

	restored := NewEpisodicService(snapshots, testLogger())
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := restored.RecentEpisodes(0); len(got) != 1 {
		t.Fatalf("expected 1 episode after restore, got %d", len(got))
	}
	if got := restored.Lessons(); len(got) != 1 {
		t.Fatalf("expected 1 lesson after restore, got %d", len(got))
	}
}
