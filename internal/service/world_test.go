package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestWorld() (*WorldService, *store.InMemorySnapshotStore) {
	snapshots := store.NewInMemorySnapshotStore()
	return NewWorldService(snapshots, testLogger()), snapshots
}

func TestWorldService_AddBelief(t *testing.T) {
	svc, snapshots := newTestWorld()
	ctx := context.Background()

	b, err := svc.AddBelief(ctx, "BTC is trending up", 0.7, domain.SourceObservation, nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if b.Confidence != 0.7 {
		t.Fatalf("expected confidence 0.7, got %f", b.Confidence)
	}
	if snapshots.SaveCount() == 0 {
		t.Fatal("expected belief write to persist a snapshot")
	}
}

func TestWorldService_AddBelief_ClampsConfidence(t *testing.T) {
	svc, _ := newTestWorld()
	ctx := context.Background()

	b, err := svc.AddBelief(ctx, "overconfident claim", 1.7, domain.SourceInference, nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if b.Confidence != 1.0 {
		t.Fatalf("expected confidence clamped to 1.0, got %f", b.Confidence)
	}
}

func TestWorldService_Contradiction_HigherConfidenceWins(t *testing.T) {
	svc, _ := newTestWorld()
	ctx := context.Background()

	if _, err := svc.AddBelief(ctx, "ETH is undervalued", 0.5, domain.SourceObservation, nil, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := svc.AddBelief(ctx, "ETH is not undervalued", 0.8, domain.SourceObservation, nil, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	beliefs := svc.GetBeliefs("undervalued")
	if len(beliefs) != 1 {
		t.Fatalf("expected 1 surviving belief, got %d", len(beliefs))
	}
	if beliefs[0].Content != "ETH is not undervalued" {
		t.Fatalf("expected higher-confidence belief to survive, got %q", beliefs[0].Content)
	}
}

func TestWorldService_Contradiction_TieKeepsExisting(t *testing.T) {
	svc, _ := newTestWorld()
	ctx := context.Background()

	if _, err := svc.AddBelief(ctx, "SOL is overbought", 0.6, domain.SourceObservation, nil, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := svc.AddBelief(ctx, "SOL is not overbought", 0.6, domain.SourceObservation, nil, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	beliefs := svc.GetBeliefs("overbought")
	if len(beliefs) != 1 {
		t.Fatalf("expected 1 surviving belief, got %d", len(beliefs))
	}
	if beliefs[0].Content != "SOL is overbought" {
		t.Fatalf("expected existing belief to survive the tie, got %q", beliefs[0].Content)
	}
}

func TestWorldService_ExpiredBeliefsFiltered(t *testing.T) {
	svc, _ := newTestWorld()
	ctx := context.Background()

	expiry := -1 * time.Second // already expired
	if _, err := svc.AddBelief(ctx, "fleeting opportunity", 0.9, domain.SourceObservation, &expiry, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := svc.GetBeliefs(""); len(got) != 0 {
		t.Fatalf("expected expired belief to be filtered, got %d beliefs", len(got))
	}
	if svc.Believes("fleeting opportunity", 0.1) {
		t.Fatal("expected Believes to ignore expired beliefs")
	}
}

func TestWorldService_BeliefEviction(t *testing.T) {
	svc, _ := newTestWorld()
	svc.SetCapacity(3, DefaultMaxSignals)
	ctx := context.Background()

	confidences := []float64{0.9, 0.2, 0.8, 0.7}
	for i, c := range confidences {
		content := "belief " + string(rune('a'+i))
		if _, err := svc.AddBelief(ctx, content, c, domain.SourceObservation, nil, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	beliefs := svc.GetBeliefs("")
	if len(beliefs) != 3 {
		t.Fatalf("expected 3 beliefs after eviction, got %d", len(beliefs))
	}
	for _, b := range beliefs {
		if b.Content == "belief b" {
			t.Fatal("expected the lowest-scored belief to be evicted")
		}
	}
}

func TestWorldService_SignalRingDropsOldest(t *testing.T) {
	svc, _ := newTestWorld()
	svc.SetCapacity(DefaultMaxBeliefs, 2)
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		if _, err := svc.AddSignal(ctx, domain.SignalPriceMovement, "test", content, 0.5); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	signals := svc.GetUnprocessedSignals()
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals after overflow, got %d", len(signals))
	}
	for _, sig := range signals {
		if sig.Content == "first" {
			t.Fatal("expected oldest signal to be dropped")
		}
	}
}

func TestWorldService_MarkSignalProcessed_Monotonic(t *testing.T) {
	svc, _ := newTestWorld()
	ctx := context.Background()

	sig, err := svc.AddSignal(ctx, domain.SignalWhaleActivity, "chain", "big transfer", 0.9)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := svc.MarkSignalProcessed(ctx, sig.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// Second mark is a no-op, not an error.
	if err := svc.MarkSignalProcessed(ctx, sig.ID); err != nil {
		t.Fatalf("expected repeat mark to be a no-op, got %v", err)
	}
	if got := svc.GetUnprocessedSignals(); len(got) != 0 {
		t.Fatalf("expected no unprocessed signals, got %d", len(got))
	}
}

func TestWorldService_CalibrationScore(t *testing.T) {
	svc, _ := newTestWorld()
	ctx := context.Background()

	p1, err := svc.AddPrediction(ctx, "BTC closes above 100k", 0.8)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	p2, err := svc.AddPrediction(ctx, "ETH flips BTC", 0.3)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if score, n := svc.CalibrationScore(); n != 0 || score != 0 {
		t.Fatalf("expected zero score before resolution, got %f over %d", score, n)
	}

	if err := svc.ResolvePrediction(ctx, p1.ID, true); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.ResolvePrediction(ctx, p2.ID, false); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	score, n := svc.CalibrationScore()
	if n != 2 {
		t.Fatalf("expected 2 resolved predictions, got %d", n)
	}
	// Brier: ((0.8-1)^2 + (0.3-0)^2) / 2 = (0.04 + 0.09) / 2 = 0.065
	if score < 0.064 || score > 0.066 {
		t.Fatalf("expected Brier score ~0.065, got %f", score)
	}
}

func TestWorldService_Summary_TriggerPhrases(t *testing.T) {
	svc, _ := newTestWorld()
	ctx := context.Background()

	if _, err := svc.UpsertMarket(ctx, "BTC", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := svc.UpsertMarket(ctx, "BTC", decimal.NewFromInt(110)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	summary := svc.Summary()
	if !strings.Contains(summary, PhraseMarketMovement) {
		t.Fatalf("expected summary to flag a 10%% move, got %q", summary)
	}

	pos := domain.Position{
		Symbol:       "ETH",
		Size:         decimal.NewFromInt(10),
		EntryPrice:   decimal.NewFromInt(100),
		CurrentPrice: decimal.NewFromInt(50),
	}
	if _, err := svc.UpsertPosition(ctx, pos); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	summary = svc.Summary()
	if !strings.Contains(summary, PhrasePositionRisk) {
		t.Fatalf("expected summary to flag position risk, got %q", summary)
	}
}

func TestWorldService_Restore(t *testing.T) {
	snapshots := store.NewInMemorySnapshotStore()
	svc := NewWorldService(snapshots, testLogger())
	ctx := context.Background()

	if _, err := svc.AddBelief(ctx, "persisted belief", 0.6, domain.SourceObservation, nil, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := svc.AddSignal(ctx, domain.SignalNewsSentiment, "feed", "headline", 0.4); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	restored := NewWorldService(snapshots, testLogger())
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := restored.GetBeliefs(""); len(got) != 1 {
		t.Fatalf("expected 1 belief after restore, got %d", len(got))
	}
	if got := restored.GetUnprocessedSignals(); len(got) != 1 {
		t.Fatalf("expected 1 signal after restore, got %d", len(got))
	}
}
