package domain

import (
	"time"

	"github.com/google/uuid"
)

// GoalType classifies the intention behind a goal.
type GoalType string

const (
	GoalMonitor   GoalType = "monitor"
	GoalResearch  GoalType = "research"
	GoalTrade     GoalType = "trade"
	GoalAlert     GoalType = "alert"
	GoalLearn     GoalType = "learn"
	GoalMaintain  GoalType = "maintain"
	GoalProactive GoalType = "proactive"
)

func ValidGoalType(s string) bool {
	switch GoalType(s) {
	case GoalMonitor, GoalResearch, GoalTrade, GoalAlert, GoalLearn, GoalMaintain, GoalProactive:
		return true
	}
	return false
}

// GoalStatus is a goal's lifecycle state.
type GoalStatus string

const (
	GoalActive     GoalStatus = "active"
	GoalInProgress GoalStatus = "in_progress"
	GoalAchieved   GoalStatus = "achieved"
	GoalFailed     GoalStatus = "failed"
	GoalAbandoned  GoalStatus = "abandoned"
	GoalBlocked    GoalStatus = "blocked"
)

// Terminal reports whether the status admits no further transitions.
// Blocked is not terminal: a blocked goal returns to active or in_progress.
func (s GoalStatus) Terminal() bool {
	switch s {
	case GoalAchieved, GoalFailed, GoalAbandoned:
		return true
	}
	return false
}

// Goal is a persistent intention with priority, status, and optional
// parent/child decomposition.
type Goal struct {
	ID              uuid.UUID      `json:"id"`
	Type            GoalType       `json:"type"`
	Description     string         `json:"description"`
	Priority        float64        `json:"priority"` // 0-100
	Status          GoalStatus     `json:"status"`
	ParentGoalID    *uuid.UUID     `json:"parent_goal_id,omitempty"`
	SubGoalIDs      []uuid.UUID    `json:"sub_goal_ids,omitempty"`
	SuccessCriteria string         `json:"success_criteria,omitempty"`
	Deadline        *time.Time     `json:"deadline,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// ClampPriority bounds a priority value to [0,100].
func ClampPriority(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
