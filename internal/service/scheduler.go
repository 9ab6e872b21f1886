package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSchedulerInterval = 30 * time.Second
	defaultReconcileInterval = 1 * time.Minute
)

// CycleScheduler drives the cognitive loop on a fixed interval. The loop's
// own cooldown and hourly cap still apply; a tick that lands inside the
// cooldown simply produces a skipped cycle.
type CycleScheduler struct {
	loop   *LoopService
	logger *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewCycleScheduler(loop *LoopService, logger *zap.Logger) *CycleScheduler {
	return &CycleScheduler{
		loop:     loop,
		logger:   logger,
		interval: defaultSchedulerInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *CycleScheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start runs cycles on a periodic schedule in a background goroutine.
func (s *CycleScheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("cycle scheduler started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				res := s.loop.RunCycle(ctx)
				cancel()
				if !res.Success {
					s.logger.Debug("scheduled cycle did not complete", zap.String("summary", res.Summary))
				}
			case <-s.stopCh:
				s.logger.Info("cycle scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *CycleScheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// ReconcilerService performs periodic housekeeping outside the cognitive
// cycle: stale goal cleanup, coordinator message expiry, stuck-agent
// recovery, and conflict escalation surfacing.
type ReconcilerService struct {
	goals  *GoalService
	coord  *CoordinatorService
	logger *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewReconcilerService(goals *GoalService, coord *CoordinatorService, logger *zap.Logger) *ReconcilerService {
	return &ReconcilerService{
		goals:    goals,
		coord:    coord,
		logger:   logger,
		interval: defaultReconcileInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *ReconcilerService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start runs the reconciler on a periodic schedule in a background goroutine.
func (s *ReconcilerService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("reconciler started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("reconciler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the reconciler.
func (s *ReconcilerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *ReconcilerService) run(ctx context.Context) {
	stale, trimmed := s.goals.CleanupStaleGoals(ctx)
	if stale > 0 || trimmed > 0 {
		s.logger.Info("cleaned up goals",
			zap.Int("stale", stale),
			zap.Int("trimmed", trimmed))
	}

	if expired := s.coord.ExpireMessages(); expired > 0 {
		s.logger.Info("expired agent messages", zap.Int("count", expired))
	}

	if recovered := s.coord.RecoverStuckAgents(ctx); recovered > 0 {
		s.logger.Info("recovered stuck agents", zap.Int("count", recovered))
	}

	if escalations := s.coord.Escalations(); len(escalations) > 0 {
		s.logger.Warn("unresolved conflict escalations pending",
			zap.Int("count", len(escalations)))
	}
}
