package domain

import (
	"time"

	"github.com/google/uuid"
)

// Phase names one stage of the cognitive cycle, in fixed order.
type Phase string

const (
	PhasePerceive      Phase = "perceive"
	PhaseUpdateBeliefs Phase = "update_beliefs"
	PhaseEvaluate      Phase = "evaluate"
	PhaseDeliberate    Phase = "deliberate"
	PhasePlan          Phase = "plan"
	PhaseAct           Phase = "act"
	PhaseReflect       Phase = "reflect"
)

// CycleResult summarizes one cognitive cycle. A skipped or failed cycle still
// returns a result; cycle errors never propagate to the host.
type CycleResult struct {
	Success        bool          `json:"success"`
	Summary        string        `json:"summary"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	SignalsSeen    int           `json:"signals_seen"`
	Events         int           `json:"events"`
	BeliefsCreated int           `json:"beliefs_created"`
	GoalsSpawned   int           `json:"goals_spawned"`
	SelectedGoalID *uuid.UUID    `json:"selected_goal_id,omitempty"`
	PlanSteps      int           `json:"plan_steps"`
	StepsExecuted  int           `json:"steps_executed"`
	FailedPhase    Phase         `json:"failed_phase,omitempty"`
}

// CycleMetrics is the structured metrics snapshot exported to operator
// surfaces.
type CycleMetrics struct {
	TotalCycles      int64         `json:"total_cycles"`
	GoalsAchieved    int64         `json:"goals_achieved"`
	GoalsFailed      int64         `json:"goals_failed"`
	AverageCycleTime time.Duration `json:"average_cycle_time"`
	CalibrationScore float64       `json:"calibration_score"`
}
