// Package skill provides the typed skill registry the cognitive loop
// executes plan steps against. Skills are plain Go functions registered by
// name; unknown names fail the step rather than silently succeeding.
package skill

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Skill is one executable capability.
type Skill interface {
	Name() string
	Description() string
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// FuncSkill adapts a function to the Skill interface.
type FuncSkill struct {
	SkillName string
	Desc      string
	Fn        func(ctx context.Context, params map[string]any) (any, error)
}

func (f *FuncSkill) Name() string        { return f.SkillName }
func (f *FuncSkill) Description() string { return f.Desc }

func (f *FuncSkill) Execute(ctx context.Context, params map[string]any) (any, error) {
	return f.Fn(ctx, params)
}

// Registry holds named skills and satisfies domain.SkillExecutor.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		skills: make(map[string]Skill),
		logger: logger,
	}
}

// Register adds a skill, replacing any existing skill with the same name.
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Name()] = s
}

// RegisterFunc registers a function-backed skill.
func (r *Registry) RegisterFunc(name, description string, fn func(ctx context.Context, params map[string]any) (any, error)) {
	r.Register(&FuncSkill{SkillName: name, Desc: description, Fn: fn})
}

// Names returns registered skill names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named skill. The caller owns the context deadline.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (any, error) {
	r.mu.RLock()
	s, ok := r.skills[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown skill: %s", name)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("skill %s not started: %w", name, err)
	}

	res, err := s.Execute(ctx, params)
	if err != nil {
		r.logger.Warn("skill execution failed",
			zap.String("skill", name), zap.Error(err))
		return nil, fmt.Errorf("skill %s: %w", name, err)
	}
	return res, nil
}
