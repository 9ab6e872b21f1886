package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus is a plan step's execution state.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// PlanStep names a target skill with its parameters, preconditions, abort
// conditions, and a timeout enforced at the skill-execution boundary.
type PlanStep struct {
	ID              uuid.UUID      `json:"id"`
	Skill           string         `json:"skill"`
	Params          map[string]any `json:"params,omitempty"`
	Preconditions   []string       `json:"preconditions,omitempty"`
	ExpectedOutcome string         `json:"expected_outcome,omitempty"`
	AbortConditions []string       `json:"abort_conditions,omitempty"`
	Timeout         time.Duration  `json:"timeout"`
	Status          StepStatus     `json:"status"`
	Result          any            `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// Plan is an ordered, ephemeral execution recipe for pursuing one goal.
// Plans are created fresh per goal-selection cycle and never persisted
// independently of the owning cycle's result.
type Plan struct {
	ID        uuid.UUID  `json:"id"`
	GoalID    uuid.UUID  `json:"goal_id"`
	Steps     []PlanStep `json:"steps"`
	CreatedAt time.Time  `json:"created_at"`
}
