package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeType represents the result of an episode.
type OutcomeType string

const (
	OutcomeSuccess OutcomeType = "success"
	OutcomeFailure OutcomeType = "failure"
	OutcomePartial OutcomeType = "partial"
	OutcomePending OutcomeType = "pending"
)

func ValidOutcomeType(s string) bool {
	switch OutcomeType(s) {
	case OutcomeSuccess, OutcomeFailure, OutcomePartial, OutcomePending:
		return true
	}
	return false
}

// Episode is a logged record of an action and its outcome, the unit of
// experience. The episode log is append-only and capacity-bounded.
type Episode struct {
	ID            uuid.UUID   `json:"id"`
	Timestamp     time.Time   `json:"timestamp"`
	Context       string      `json:"context"`
	ActionTaken   string      `json:"action_taken"`
	Outcome       OutcomeType `json:"outcome"`
	LessonLearned string      `json:"lesson_learned,omitempty"`
	RelatedGoalID *uuid.UUID  `json:"related_goal_id,omitempty"`
	Signals       []uuid.UUID `json:"signals,omitempty"`
}

// Lesson is a generalized, reusable insight distilled from one or more
// episodes. Similar lessons are merged by strengthening confidence rather
// than duplicated.
type Lesson struct {
	ID             uuid.UUID   `json:"id"`
	Content        string      `json:"content"`
	Context        string      `json:"context,omitempty"`
	SourceEpisodes []uuid.UUID `json:"source_episodes,omitempty"`
	Confidence     float64     `json:"confidence"`
	TimesApplied   int         `json:"times_applied"`
	CreatedAt      time.Time   `json:"created_at"`
	LastApplied    *time.Time  `json:"last_applied,omitempty"`
}

// ActionPattern is a per-action-type frequency and success rate derived from
// recent episodes.
type ActionPattern struct {
	ActionType  string  `json:"action_type"`
	Frequency   int     `json:"frequency"`
	SuccessRate float64 `json:"success_rate"`
}

// BiasType labels a detected systematic deviation between predicted
// confidence and observed outcomes.
type BiasType string

const (
	BiasOverconfidence BiasType = "overconfidence"
	BiasRecency        BiasType = "recency"
)

// Bias is a heuristic signal, not a hard guarantee.
type Bias struct {
	Type        BiasType `json:"type"`
	Magnitude   float64  `json:"magnitude"`
	Description string   `json:"description"`
}
