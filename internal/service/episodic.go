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

// Episodic memory constants
const (
	DefaultMaxEpisodes = 200 // Episode log capacity; oldest dropped first

	InitialLessonConfidence = 0.5  // Confidence for a freshly distilled lesson
	LessonMergeBoost        = 0.1  // Confidence gained when a similar lesson recurs
	MinLessonRelevance      = 0.2  // Retrieval score floor
	ContextMatchWeight      = 0.5  // Score for a context substring match
	WordOverlapWeight       = 0.1  // Score per overlapping content word
	ConfidenceWeight        = 0.3  // Score contribution per unit of confidence
	MaxUsageBonus           = 0.2  // Cap on the usage-frequency contribution
	UsageBonusPerApply      = 0.05 // Usage contribution per application

	MinPatternOccurrences = 3   // Groups below this are statistically unreliable
	OverconfidenceMinN    = 5   // Predict-type episodes needed to flag overconfidence
	OverconfidenceFailure = 0.4 // Failure rate beyond which overconfidence is flagged
	RecencyWindow         = 10  // Most-recent episodes scanned for novel action types
)

type episodicSnapshot struct {
	Episodes []domain.Episode `json:"episodes"`
	Lessons  []domain.Lesson  `json:"lessons"`
}

// EpisodicService records episodes and derives lessons, patterns, and biases
// from them. The episode log is append-only and capacity-bounded.
type EpisodicService struct {
	snapshots domain.SnapshotStore
	logger    *zap.Logger

	mu       sync.RWMutex
	episodes []domain.Episode
	lessons  []domain.Lesson

	maxEpisodes int
}

func NewEpisodicService(snapshots domain.SnapshotStore, logger *zap.Logger) *EpisodicService {
	return &EpisodicService{
		snapshots:   snapshots,
		logger:      logger,
		maxEpisodes: DefaultMaxEpisodes,
	}
}

// SetCapacity overrides the episode log capacity.
func (s *EpisodicService) SetCapacity(maxEpisodes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxEpisodes > 0 {
		s.maxEpisodes = maxEpisodes
	}
}

// Restore loads the persisted snapshot. A missing snapshot starts fresh.
func (s *EpisodicService) Restore(ctx context.Context) error {
	var snap episodicSnapshot
	err := s.snapshots.Load(ctx, domain.SnapshotEpisodicMemory, &snap)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore episodic memory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes = snap.Episodes
	s.lessons = snap.Lessons
	return nil
}

// RecordEpisode appends an episode, dropping the oldest on overflow.
func (s *EpisodicService) RecordEpisode(ctx context.Context, ep domain.Episode) (*domain.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ep.ID == uuid.Nil {
		ep.ID = uuid.New()
	}
	if ep.Timestamp.IsZero() {
		ep.Timestamp = time.Now()
	}
	if ep.Outcome == "" {
		ep.Outcome = domain.OutcomePending
	}
	s.episodes = append(s.episodes, ep)
	if len(s.episodes) > s.maxEpisodes {
		dropped := len(s.episodes) - s.maxEpisodes
		s.episodes = s.episodes[dropped:]
		s.logger.Debug("episode log overflow", zap.Int("dropped", dropped))
	}

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return &ep, nil
}

// UpdateEpisodeOutcome sets an episode's outcome and, when a lesson string
// is supplied, synthesizes a lesson from it.
func (s *EpisodicService) UpdateEpisodeOutcome(ctx context.Context, id uuid.UUID, outcome domain.OutcomeType, lesson string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.episodes {
		if s.episodes[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return store.ErrNotFound
	}

	s.episodes[idx].Outcome = outcome
	if lesson != "" {
		s.episodes[idx].LessonLearned = lesson
		s.upsertLessonLocked(lesson, s.episodes[idx].Context, []uuid.UUID{id})
	}
	return s.persistLocked(ctx)
}

// CreateLesson inserts a lesson at the initial confidence, or strengthens an
// existing substring-similar lesson instead of duplicating it.
func (s *EpisodicService) CreateLesson(ctx context.Context, content, situation string, sourceEpisodes []uuid.UUID) (*domain.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := *s.upsertLessonLocked(content, situation, sourceEpisodes)
	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *EpisodicService) upsertLessonLocked(content, situation string, sourceEpisodes []uuid.UUID) *domain.Lesson {
	c := strings.ToLower(content)
	for i := range s.lessons {
		existing := strings.ToLower(s.lessons[i].Content)
		if strings.Contains(existing, c) || strings.Contains(c, existing) {
			s.lessons[i].Confidence = domain.ClampConfidence(s.lessons[i].Confidence + LessonMergeBoost)
			s.lessons[i].SourceEpisodes = append(s.lessons[i].SourceEpisodes, sourceEpisodes...)
			return &s.lessons[i]
		}
	}

	l := domain.Lesson{
		ID:             uuid.New(),
		Content:        content,
		Context:        situation,
		SourceEpisodes: sourceEpisodes,
		Confidence:     InitialLessonConfidence,
		CreatedAt:      time.Now(),
	}
	s.lessons = append(s.lessons, l)
	return &s.lessons[len(s.lessons)-1]
}

// GetRelevantLessons scores lessons against a situation and returns the best
// matches above the relevance floor. Returned lessons have their usage
// counters bumped.
func (s *EpisodicService) GetRelevantLessons(ctx context.Context, situation string, limit int) ([]domain.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sit := strings.ToLower(situation)
	type scored struct {
		idx   int
		score float64
	}
	var matches []scored
	for i := range s.lessons {
		l := &s.lessons[i]
		score := ConfidenceWeight * l.Confidence

		lctx := strings.ToLower(l.Context)
		if lctx != "" && (strings.Contains(sit, lctx) || strings.Contains(lctx, sit)) {
			score += ContextMatchWeight
		}
		for _, word := range strings.Fields(strings.ToLower(l.Content)) {
			if strings.Contains(sit, word) {
				score += WordOverlapWeight
			}
		}
		usage := float64(l.TimesApplied) * UsageBonusPerApply
		if usage > MaxUsageBonus {
			usage = MaxUsageBonus
		}
		score += usage

		if score > MinLessonRelevance {
			matches = append(matches, scored{idx: i, score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return s.lessons[matches[i].idx].ID.String() < s.lessons[matches[j].idx].ID.String()
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	now := time.Now()
	out := make([]domain.Lesson, 0, len(matches))
	for _, m := range matches {
		s.lessons[m.idx].TimesApplied++
		s.lessons[m.idx].LastApplied = &now
		out = append(out, s.lessons[m.idx])
	}

	if len(out) > 0 {
		if err := s.persistLocked(ctx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Lessons returns all stored lessons.
func (s *EpisodicService) Lessons() []domain.Lesson {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Lesson(nil), s.lessons...)
}

// RecentEpisodes returns up to n most recent episodes, oldest first.
func (s *EpisodicService) RecentEpisodes(n int) []domain.Episode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentLocked(n)
}

func (s *EpisodicService) recentLocked(n int) []domain.Episode {
	if n <= 0 || n > len(s.episodes) {
		n = len(s.episodes)
	}
	return append([]domain.Episode(nil), s.episodes[len(s.episodes)-n:]...)
}

// classifyAction buckets an action description by keyword. A lexical
// classifier, not semantic analysis.
func classifyAction(action string) string {
	a := strings.ToLower(action)
	switch {
	case strings.Contains(a, "predict"):
		return "prediction"
	case strings.Contains(a, "trade"), strings.Contains(a, "buy"),
		strings.Contains(a, "sell"), strings.Contains(a, "arbitrage"):
		return "trading"
	case strings.Contains(a, "research"), strings.Contains(a, "analy"):
		return "research"
	case strings.Contains(a, "alert"), strings.Contains(a, "notif"):
		return "alerting"
	case strings.Contains(a, "monitor"), strings.Contains(a, "watch"):
		return "monitoring"
	default:
		return "general"
	}
}

// AnalyzePatterns groups the most recent window episodes by action type and
// reports per-group frequency and success rate. Groups below the minimum
// occurrence count are dropped as statistically unreliable.
func (s *EpisodicService) AnalyzePatterns(window int) []domain.ActionPattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recent := s.recentLocked(window)
	counts := make(map[string]int)
	successes := make(map[string]int)
	for _, ep := range recent {
		t := classifyAction(ep.ActionTaken)
		counts[t]++
		if ep.Outcome == domain.OutcomeSuccess {
			successes[t]++
		}
	}

	var patterns []domain.ActionPattern
	for t, n := range counts {
		if n < MinPatternOccurrences {
			continue
		}
		patterns = append(patterns, domain.ActionPattern{
			ActionType:  t,
			Frequency:   n,
			SuccessRate: float64(successes[t]) / float64(n),
		})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Frequency != patterns[j].Frequency {
			return patterns[i].Frequency > patterns[j].Frequency
		}
		return patterns[i].ActionType < patterns[j].ActionType
	})
	return patterns
}

// DetectBiases flags overconfidence and recency bias over the given window.
// Both are heuristic signals, not hard guarantees.
func (s *EpisodicService) DetectBiases(window int) []domain.Bias {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recent := s.recentLocked(window)
	var biases []domain.Bias

	// Overconfidence: predict-type episodes failing more than the threshold.
	var predictions, failures int
	for _, ep := range recent {
		if classifyAction(ep.ActionTaken) != "prediction" {
			continue
		}
		predictions++
		if ep.Outcome == domain.OutcomeFailure {
			failures++
		}
	}
	if predictions >= OverconfidenceMinN {
		failureRate := float64(failures) / float64(predictions)
		if failureRate > OverconfidenceFailure {
			biases = append(biases, domain.Bias{
				Type:      domain.BiasOverconfidence,
				Magnitude: failureRate - OverconfidenceFailure,
				Description: fmt.Sprintf("%d of %d prediction episodes failed (%.0f%%)",
					failures, predictions, failureRate*100),
			})
		}
	}

	// Recency: action types that only appear in the most recent episodes.
	if len(recent) > RecencyWindow {
		prior := make(map[string]bool)
		for _, ep := range recent[:len(recent)-RecencyWindow] {
			prior[classifyAction(ep.ActionTaken)] = true
		}
		novel := make(map[string]bool)
		for _, ep := range recent[len(recent)-RecencyWindow:] {
			t := classifyAction(ep.ActionTaken)
			if !prior[t] {
				novel[t] = true
			}
		}
		if len(novel) > 0 {
			types := make([]string, 0, len(novel))
			for t := range novel {
				types = append(types, t)
			}
			sort.Strings(types)
			biases = append(biases, domain.Bias{
				Type:      domain.BiasRecency,
				Magnitude: 0.1 * float64(len(novel)),
				Description: fmt.Sprintf("action types %s appear only in the last %d episodes",
					strings.Join(types, ", "), RecencyWindow),
			})
		}
	}

	return biases
}

func (s *EpisodicService) persistLocked(ctx context.Context) error {
	snap := episodicSnapshot{Episodes: s.episodes, Lessons: s.lessons}
	if err := s.snapshots.Save(ctx, domain.SnapshotEpisodicMemory, snap); err != nil {
		return fmt.Errorf("failed to persist episodic memory: %w", err)
	}
	return nil
}
