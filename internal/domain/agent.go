package domain

import (
	"time"

	"github.com/google/uuid"
)

// AgentRole names a specialist worker type.
type AgentRole string

const (
	RoleScout        AgentRole = "scout"
	RoleAnalyst      AgentRole = "analyst"
	RoleTrader       AgentRole = "trader"
	RoleOrchestrator AgentRole = "orchestrator"
)

func ValidAgentRole(s string) bool {
	switch AgentRole(s) {
	case RoleScout, RoleAnalyst, RoleTrader, RoleOrchestrator:
		return true
	}
	return false
}

// AgentStatus is an agent's availability state. Offline is an explicit
// opt-out excluded from task selection.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentWorking AgentStatus = "working"
	AgentBlocked AgentStatus = "blocked"
	AgentOffline AgentStatus = "offline"
)

// AgentDefinition is the static description of a specialist agent.
type AgentDefinition struct {
	ID                 string    `json:"id"`
	Role               AgentRole `json:"role"`
	Capabilities       []string  `json:"capabilities"`
	ModelTier          string    `json:"model_tier"`
	MaxConcurrentGoals int       `json:"max_concurrent_goals"`
}

// AgentMetrics tracks an agent's cumulative task outcomes.
type AgentMetrics struct {
	TasksCompleted      int           `json:"tasks_completed"`
	TasksFailed         int           `json:"tasks_failed"`
	AverageResponseTime time.Duration `json:"average_response_time"`
}

// AgentState is the dynamic state of a registered agent.
type AgentState struct {
	ID           string       `json:"id"`
	Role         AgentRole    `json:"role"`
	Status       AgentStatus  `json:"status"`
	CurrentGoals []uuid.UUID  `json:"current_goals"`
	LastActivity time.Time    `json:"last_activity"`
	Metrics      AgentMetrics `json:"metrics"`
}

// MessageType classifies inter-agent messages.
type MessageType string

const (
	MessageTaskRequest        MessageType = "task_request"
	MessageTaskResponse       MessageType = "task_response"
	MessageBeliefShare        MessageType = "belief_share"
	MessageGoalClaim          MessageType = "goal_claim"
	MessageConflictResolution MessageType = "conflict_resolution"
	MessageStatusUpdate       MessageType = "status_update"
)

// AgentMessage is queued until acknowledged or expired.
type AgentMessage struct {
	ID               uuid.UUID      `json:"id"`
	From             string         `json:"from"`
	To               string         `json:"to"`
	Type             MessageType    `json:"type"`
	Content          string         `json:"content"`
	Payload          map[string]any `json:"payload,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	RequiresResponse bool           `json:"requires_response"`
	ResponseDeadline *time.Time     `json:"response_deadline,omitempty"`
	Acknowledged     bool           `json:"acknowledged"`
}

// ConflictPolicy selects how an assignment conflict is resolved.
type ConflictPolicy string

const (
	PolicyPriorityWins ConflictPolicy = "priority_wins"
	PolicyNegotiation  ConflictPolicy = "negotiation"
	PolicyEscalate     ConflictPolicy = "escalate"
	PolicyAbandon      ConflictPolicy = "abandon"
)

func ValidConflictPolicy(s string) bool {
	switch ConflictPolicy(s) {
	case PolicyPriorityWins, PolicyNegotiation, PolicyEscalate, PolicyAbandon:
		return true
	}
	return false
}

// Conflict records a goal claimed by more than one agent.
type Conflict struct {
	GoalID   uuid.UUID `json:"goal_id"`
	AgentIDs []string  `json:"agent_ids"`
}

// Resolution describes the applied outcome of a conflict.
type Resolution struct {
	Conflict Conflict       `json:"conflict"`
	Policy   ConflictPolicy `json:"policy"`
	Winner   string         `json:"winner,omitempty"`
	Note     string         `json:"note,omitempty"`
}
