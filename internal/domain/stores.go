package domain

import "context"

// Snapshot document names. Each store persists its own document in full on
// every mutation; there is no transaction boundary across the three.
const (
	SnapshotWorldState     = "world_state"
	SnapshotGoalStore      = "goal_store"
	SnapshotEpisodicMemory = "episodic_memory"
)

// SnapshotStore persists full store snapshots as independent documents with
// atomic per-document writes.
type SnapshotStore interface {
	Save(ctx context.Context, name string, doc any) error
	Load(ctx context.Context, name string, out any) error
}

// SkillExecutor dispatches a plan step to a registered skill strategy.
// The core is agnostic to what a skill does; it only needs success or failure
// and a result payload.
type SkillExecutor interface {
	Execute(ctx context.Context, skill string, params map[string]any) (any, error)
}
