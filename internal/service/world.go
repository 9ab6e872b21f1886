package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// World model constants
const (
	DefaultMaxBeliefs = 200            // Belief store capacity
	DefaultMaxSignals = 500            // Signal ring buffer capacity
	BeliefDecayWindow = 24 * time.Hour // Age window for eviction scoring

	// Summary trigger phrases scanned by the perceive phase
	PhraseMarketMovement = "significant market movement"
	PhrasePositionRisk   = "position at risk"

	marketMoveThresholdPct = 5.0 // abs percent change that counts as significant
)

// worldSnapshot is the persisted form of the world model.
type worldSnapshot struct {
	Beliefs     []domain.Belief          `json:"beliefs"`
	Signals     []domain.Signal          `json:"signals"`
	Markets     map[string]domain.Market `json:"markets,omitempty"`
	Positions   []domain.Position        `json:"positions,omitempty"`
	Predictions []domain.Prediction      `json:"predictions,omitempty"`
}

// WorldService holds beliefs, tracked entities, and the inbox of unprocessed
// signals. Every mutation persists the full snapshot before returning, so a
// crash between cycles loses at most the in-flight operation.
type WorldService struct {
	snapshots domain.SnapshotStore
	logger    *zap.Logger

	mu          sync.RWMutex
	beliefs     map[uuid.UUID]*domain.Belief
	signals     []domain.Signal
	markets     map[string]domain.Market
	positions   map[uuid.UUID]domain.Position
	predictions map[uuid.UUID]domain.Prediction

	maxBeliefs int
	maxSignals int
}

func NewWorldService(snapshots domain.SnapshotStore, logger *zap.Logger) *WorldService {
	return &WorldService{
		snapshots:   snapshots,
		logger:      logger,
		beliefs:     make(map[uuid.UUID]*domain.Belief),
		markets:     make(map[string]domain.Market),
		positions:   make(map[uuid.UUID]domain.Position),
		predictions: make(map[uuid.UUID]domain.Prediction),
		maxBeliefs:  DefaultMaxBeliefs,
		maxSignals:  DefaultMaxSignals,
	}
}

// SetCapacity overrides the belief and signal capacities.
func (s *WorldService) SetCapacity(maxBeliefs, maxSignals int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxBeliefs > 0 {
		s.maxBeliefs = maxBeliefs
	}
	if maxSignals > 0 {
		s.maxSignals = maxSignals
	}
}

// Restore loads the persisted snapshot. A missing snapshot starts fresh.
func (s *WorldService) Restore(ctx context.Context) error {
	var snap worldSnapshot
	err := s.snapshots.Load(ctx, domain.SnapshotWorldState, &snap)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore world state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.beliefs = make(map[uuid.UUID]*domain.Belief, len(snap.Beliefs))
	for i := range snap.Beliefs {
		b := snap.Beliefs[i]
		s.beliefs[b.ID] = &b
	}
	s.signals = snap.Signals
	if snap.Markets != nil {
		s.markets = snap.Markets
	}
	s.positions = make(map[uuid.UUID]domain.Position, len(snap.Positions))
	for _, p := range snap.Positions {
		s.positions[p.ID] = p
	}
	s.predictions = make(map[uuid.UUID]domain.Prediction, len(snap.Predictions))
	for _, p := range snap.Predictions {
		s.predictions[p.ID] = p
	}
	return nil
}

// AddBelief inserts a belief after running the lexical contradiction check.
// When the new claim contradicts an existing one, the higher-confidence
// belief survives (ties keep the existing belief). Returns the surviving
// belief.
func (s *WorldService) AddBelief(ctx context.Context, content string, confidence float64, source domain.BeliefSource, expiry *time.Duration, evidence []uuid.UUID) (*domain.Belief, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	confidence = domain.ClampConfidence(confidence)

	for _, existing := range s.beliefs {
		if existing.Expired(now) || !domain.Contradicts(content, existing.Content) {
			continue
		}
		if confidence <= existing.Confidence {
			s.logger.Debug("contradicting belief rejected",
				zap.String("content", content),
				zap.Float64("confidence", confidence),
				zap.Float64("existing_confidence", existing.Confidence))
			return existing, nil
		}
		delete(s.beliefs, existing.ID)
		s.logger.Debug("contradicted belief replaced", zap.String("content", existing.Content))
		break
	}

	b := &domain.Belief{
		ID:         uuid.New(),
		Content:    content,
		Confidence: confidence,
		Source:     source,
		Evidence:   evidence,
		CreatedAt:  now,
	}
	if expiry != nil {
		t := now.Add(*expiry)
		b.ExpiresAt = &t
	}
	s.beliefs[b.ID] = b

	s.evictBeliefsLocked(now)

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBeliefConfidence sets a belief's confidence, clamped to [0,1].
func (s *WorldService) UpdateBeliefConfidence(ctx context.Context, id uuid.UUID, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.beliefs[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Confidence = domain.ClampConfidence(confidence)
	return s.persistLocked(ctx)
}

// GetBeliefs returns non-expired beliefs, optionally filtered by a substring
// query, ordered by confidence then id for determinism.
func (s *WorldService) GetBeliefs(query string) []domain.Belief {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	q := strings.ToLower(query)
	var out []domain.Belief
	for _, b := range s.beliefs {
		if b.Expired(now) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(b.Content), q) {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Believes reports whether a non-expired belief containing content is held
// at or above minConfidence.
func (s *WorldService) Believes(content string, minConfidence float64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	c := strings.ToLower(content)
	for _, b := range s.beliefs {
		if b.Expired(now) {
			continue
		}
		if b.Confidence >= minConfidence && strings.Contains(strings.ToLower(b.Content), c) {
			return true
		}
	}
	return false
}

// AddSignal appends an unprocessed signal. Strength is clamped; the signal
// buffer is a bounded ring that drops the oldest entry on overflow.
func (s *WorldService) AddSignal(ctx context.Context, typ domain.SignalType, source, content string, strength float64) (*domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig := domain.Signal{
		ID:        uuid.New(),
		Type:      typ,
		Source:    source,
		Content:   content,
		Strength:  domain.ClampConfidence(strength),
		Timestamp: time.Now(),
	}
	s.signals = append(s.signals, sig)
	if len(s.signals) > s.maxSignals {
		dropped := len(s.signals) - s.maxSignals
		s.signals = s.signals[dropped:]
		s.logger.Debug("signal ring buffer overflow", zap.Int("dropped", dropped))
	}

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return &sig, nil
}

// GetUnprocessedSignals returns the signals not yet consumed by perceive.
func (s *WorldService) GetUnprocessedSignals() []domain.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Signal
	for _, sig := range s.signals {
		if !sig.Processed {
			out = append(out, sig)
		}
	}
	return out
}

// MarkSignalProcessed flips a signal's processed flag. The transition is
// monotonic; marking an already-processed signal is a no-op.
func (s *WorldService) MarkSignalProcessed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.signals {
		if s.signals[i].ID == id {
			if s.signals[i].Processed {
				return nil
			}
			s.signals[i].Processed = true
			return s.persistLocked(ctx)
		}
	}
	return store.ErrNotFound
}

// UpsertMarket records a market price observation, keeping the previous
// price for the change-percent metric.
func (s *WorldService) UpsertMarket(ctx context.Context, symbol string, price decimal.Decimal) (*domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[symbol]
	if ok {
		m.PreviousPrice = m.Price
	}
	m.Symbol = symbol
	m.Price = price
	m.UpdatedAt = time.Now()
	s.markets[symbol] = m

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertPosition tracks a position; the id is assigned when zero.
func (s *WorldService) UpsertPosition(ctx context.Context, p domain.Position) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
		p.OpenedAt = time.Now()
	}
	s.positions[p.ID] = p

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return &p, nil
}

// Markets returns tracked markets sorted by symbol.
func (s *WorldService) Markets() []domain.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Positions returns open positions sorted by id.
func (s *WorldService) Positions() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// AddPrediction tracks a forecast for later calibration scoring.
func (s *WorldService) AddPrediction(ctx context.Context, claim string, confidence float64) (*domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := domain.Prediction{
		ID:         uuid.New(),
		Claim:      claim,
		Confidence: domain.ClampConfidence(confidence),
		CreatedAt:  time.Now(),
	}
	s.predictions[p.ID] = p

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return &p, nil
}

// ResolvePrediction marks a prediction's outcome.
func (s *WorldService) ResolvePrediction(ctx context.Context, id uuid.UUID, outcome bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.predictions[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	p.Resolved = true
	p.Outcome = &outcome
	p.ResolvedAt = &now
	s.predictions[id] = p
	return s.persistLocked(ctx)
}

// CalibrationScore computes the Brier score over resolved predictions.
// Lower is better; the count of resolved predictions is returned alongside.
func (s *WorldService) CalibrationScore() (float64, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum float64
	var n int
	for _, p := range s.predictions {
		if !p.Resolved || p.Outcome == nil {
			continue
		}
		actual := 0.0
		if *p.Outcome {
			actual = 1.0
		}
		d := p.Confidence - actual
		sum += d * d
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// Summary produces the human-readable world digest. The perceive phase scans
// it for the fixed trigger phrases; this is a keyword surface, not semantic
// analysis.
func (s *WorldService) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	active := 0
	for _, b := range s.beliefs {
		if !b.Expired(now) {
			active++
		}
	}
	unprocessed := 0
	for _, sig := range s.signals {
		if !sig.Processed {
			unprocessed++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "World state: %d beliefs, %d unprocessed signals, %d markets, %d positions, %d predictions.",
		active, unprocessed, len(s.markets), len(s.positions), len(s.predictions))

	moveThreshold := decimal.NewFromFloat(marketMoveThresholdPct)
	for _, m := range s.markets {
		if m.ChangePercent().Abs().GreaterThan(moveThreshold) {
			fmt.Fprintf(&sb, " %s: %s in %s (%s%%).",
				PhraseMarketMovement, m.Symbol, m.Price.String(), m.ChangePercent().StringFixed(2))
			break
		}
	}

	for _, p := range s.positions {
		if p.UnrealizedPnL().IsNegative() {
			fmt.Fprintf(&sb, " %s: %s unrealized PnL %s.",
				PhrasePositionRisk, p.Symbol, p.UnrealizedPnL().StringFixed(2))
			break
		}
	}

	return sb.String()
}

// evictBeliefsLocked drops expired beliefs, then trims to capacity by
// removing the lowest age-decayed-confidence score first. Ties break on id
// so eviction stays deterministic. Eviction is logged, never an error.
func (s *WorldService) evictBeliefsLocked(now time.Time) {
	for id, b := range s.beliefs {
		if b.Expired(now) {
			delete(s.beliefs, id)
		}
	}
	if len(s.beliefs) <= s.maxBeliefs {
		return
	}

	type scored struct {
		id    uuid.UUID
		score float64
	}
	all := make([]scored, 0, len(s.beliefs))
	for id, b := range s.beliefs {
		age := now.Sub(b.CreatedAt)
		decay := math.Exp(-age.Seconds() / BeliefDecayWindow.Seconds())
		all = append(all, scored{id: id, score: b.Confidence * decay})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score < all[j].score
		}
		return all[i].id.String() < all[j].id.String()
	})

	excess := len(s.beliefs) - s.maxBeliefs
	for i := 0; i < excess; i++ {
		delete(s.beliefs, all[i].id)
	}
	s.logger.Debug("evicted beliefs over capacity", zap.Int("count", excess))
}

func (s *WorldService) persistLocked(ctx context.Context) error {
	snap := worldSnapshot{
		Beliefs: make([]domain.Belief, 0, len(s.beliefs)),
		Signals: s.signals,
		Markets: s.markets,
	}
	for _, b := range s.beliefs {
		snap.Beliefs = append(snap.Beliefs, *b)
	}
	sort.Slice(snap.Beliefs, func(i, j int) bool {
		return snap.Beliefs[i].ID.String() < snap.Beliefs[j].ID.String()
	})
	for _, p := range s.positions {
		snap.Positions = append(snap.Positions, p)
	}
	for _, p := range s.predictions {
		snap.Predictions = append(snap.Predictions, p)
	}

	if err := s.snapshots.Save(ctx, domain.SnapshotWorldState, snap); err != nil {
		return fmt.Errorf("failed to persist world state: %w", err)
	}
	return nil
}
