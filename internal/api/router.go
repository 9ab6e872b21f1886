package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shivamSspirit/volition/internal/api/handlers"
	mw "github.com/shivamSspirit/volition/internal/api/middleware"
	"github.com/shivamSspirit/volition/internal/buildconfig"
	"github.com/shivamSspirit/volition/internal/config"
	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/service"
	"github.com/shivamSspirit/volition/internal/skill"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router     *chi.Mux
	Loop       *service.LoopService
	Scheduler  *service.CycleScheduler
	Reconciler *service.ReconcilerService
	World      *service.WorldService
	Goals      *service.GoalService
	Memory     *service.EpisodicService
	Coord      *service.CoordinatorService

	db           *pgxpool.Pool
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// NewApp wires stores, services, skills, and routes. db may be nil; the
// snapshot store then decides durability on its own (typically in-memory).
func NewApp(db *pgxpool.Pool, snapshots domain.SnapshotStore, logger *zap.Logger) *App {
	// Services
	worldSvc := service.NewWorldService(snapshots, logger)
	worldSvc.SetCapacity(config.MaxBeliefs(), config.MaxSignals())
	goalSvc := service.NewGoalService(snapshots, logger)
	goalSvc.SetLimits(config.MaxActiveGoals(), config.GoalTTL())
	memorySvc := service.NewEpisodicService(snapshots, logger)
	memorySvc.SetCapacity(config.MaxEpisodes())
	coordSvc := service.NewCoordinatorService(goalSvc, logger)
	for _, def := range service.DefaultAgentDefinitions() {
		coordSvc.RegisterAgent(def)
	}

	// Skills
	registry := skill.NewRegistry(logger)
	alerter := skill.NewAlerter(config.AlertWebhookURL(), logger)
	skill.RegisterBuiltins(registry, worldSvc, memorySvc, alerter)

	loopSvc := service.NewLoopService(worldSvc, goalSvc, memorySvc, coordSvc, registry, logger)
	loopSvc.SetCooldown(config.CycleCooldown())
	loopSvc.SetHourlyCap(config.CycleHourlyCap())

	scheduler := service.NewCycleScheduler(loopSvc, logger)
	scheduler.SetInterval(config.CycleInterval())
	reconciler := service.NewReconcilerService(goalSvc, coordSvc, logger)
	reconciler.SetInterval(config.ReconcileInterval())

	// Handlers
	signalHandler := handlers.NewSignalHandler(worldSvc)
	cycleHandler := handlers.NewCycleHandler(loopSvc)
	beliefHandler := handlers.NewBeliefHandler(worldSvc)
	goalHandler := handlers.NewGoalHandler(goalSvc)
	agentHandler := handlers.NewAgentHandler(coordSvc)
	lessonHandler := handlers.NewLessonHandler(memorySvc)

	r := chi.NewRouter()

	app := &App{
		Router:     r,
		Loop:       loopSvc,
		Scheduler:  scheduler,
		Reconciler: reconciler,
		World:      worldSvc,
		Goals:      goalSvc,
		Memory:     memorySvc,
		Coord:      coordSvc,
		db:         db,
		startTime:  time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", app.healthHandler())
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/signals", signalHandler.Create)
		r.Post("/cycle", cycleHandler.Trigger)
		r.Get("/summary", cycleHandler.Summary)
		r.Get("/status", cycleHandler.Status)

		r.Route("/beliefs", func(r chi.Router) {
			r.Get("/", beliefHandler.List)
			r.Post("/", beliefHandler.Create)
		})

		r.Route("/goals", func(r chi.Router) {
			r.Get("/", goalHandler.List)
			r.Post("/", goalHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", goalHandler.GetByID)
				r.Delete("/", goalHandler.Abandon)
			})
		})

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", agentHandler.List)
			r.Get("/conflicts", agentHandler.Conflicts)
			r.Post("/delegate", agentHandler.Delegate)
		})

		r.Get("/lessons", lessonHandler.List)
		r.Get("/episodes", lessonHandler.Episodes)
	})

	return app
}

// Restore loads persisted state into every service. Call before serving.
func (app *App) Restore(ctx context.Context) error {
	if err := app.World.Restore(ctx); err != nil {
		return fmt.Errorf("restore world state: %w", err)
	}
	if err := app.Goals.Restore(ctx); err != nil {
		return fmt.Errorf("restore goal store: %w", err)
	}
	if err := app.Memory.Restore(ctx); err != nil {
		return fmt.Errorf("restore episodic memory: %w", err)
	}
	return nil
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if app.db != nil {
			if err := app.db.Ping(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)
		cycles := app.Loop.Metrics()

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"cycles": map[string]any{
				"total":          cycles.TotalCycles,
				"goals_achieved": cycles.GoalsAchieved,
				"goals_failed":   cycles.GoalsFailed,
			},
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
