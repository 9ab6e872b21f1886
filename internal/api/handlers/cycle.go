package handlers

import (
	"net/http"

	"github.com/shivamSspirit/volition/internal/service"
)

type CycleHandler struct {
	loop *service.LoopService
}

func NewCycleHandler(loop *service.LoopService) *CycleHandler {
	return &CycleHandler{loop: loop}
}

// Trigger runs one cognitive cycle synchronously. A skipped cycle is still
// a 200: the caller gets the skip reason in the result summary.
func (h *CycleHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	result := h.loop.RunCycle(r.Context())
	writeJSON(w, http.StatusOK, result)
}

type statusResponse struct {
	TotalCycles      int64   `json:"total_cycles"`
	GoalsAchieved    int64   `json:"goals_achieved"`
	GoalsFailed      int64   `json:"goals_failed"`
	AverageCycleMS   float64 `json:"average_cycle_ms"`
	CalibrationScore float64 `json:"calibration_score"`
}

func (h *CycleHandler) Status(w http.ResponseWriter, r *http.Request) {
	m := h.loop.Metrics()
	writeJSON(w, http.StatusOK, statusResponse{
		TotalCycles:      m.TotalCycles,
		GoalsAchieved:    m.GoalsAchieved,
		GoalsFailed:      m.GoalsFailed,
		AverageCycleMS:   float64(m.AverageCycleTime.Microseconds()) / 1000,
		CalibrationScore: m.CalibrationScore,
	})
}

func (h *CycleHandler) Summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"summary": h.loop.StateSummary()})
}
