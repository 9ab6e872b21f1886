package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/service"
	"github.com/shivamSspirit/volition/internal/store"
)

type GoalHandler struct {
	svc *service.GoalService
}

func NewGoalHandler(svc *service.GoalService) *GoalHandler {
	return &GoalHandler{svc: svc}
}

func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	goals := h.svc.ListGoals()

	status := r.URL.Query().Get("status")
	if status != "" {
		filtered := goals[:0]
		for _, g := range goals {
			if string(g.Status) == status {
				filtered = append(filtered, g)
			}
		}
		goals = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"goals": goals,
		"count": len(goals),
	})
}

type createGoalRequest struct {
	Type            string  `json:"type"`
	Description     string  `json:"description"`
	Priority        float64 `json:"priority"`
	DeadlineSeconds *int64  `json:"deadline_seconds,omitempty"`
	SuccessCriteria string  `json:"success_criteria,omitempty"`
}

var validGoalTypes = map[domain.GoalType]bool{
	domain.GoalMonitor:   true,
	domain.GoalResearch:  true,
	domain.GoalTrade:     true,
	domain.GoalAlert:     true,
	domain.GoalLearn:     true,
	domain.GoalMaintain:  true,
	domain.GoalProactive: true,
}

func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	typ := domain.GoalType(req.Type)
	if !validGoalTypes[typ] {
		writeError(w, http.StatusBadRequest, "invalid goal type")
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	var opts []service.GoalOption
	if req.DeadlineSeconds != nil {
		if *req.DeadlineSeconds <= 0 {
			writeError(w, http.StatusBadRequest, "deadline_seconds must be positive")
			return
		}
		opts = append(opts, service.WithDeadline(time.Now().Add(time.Duration(*req.DeadlineSeconds)*time.Second)))
	}
	if len(req.SuccessCriteria) > 0 {
		opts = append(opts, service.WithSuccessCriteria(req.SuccessCriteria))
	}

	goal, err := h.svc.CreateGoal(r.Context(), typ, req.Description, req.Priority, opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create goal")
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

func (h *GoalHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}

	goal, err := h.svc.GetGoal(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "goal not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get goal")
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (h *GoalHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}

	if err := h.svc.AbandonGoal(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "goal not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to abandon goal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
}
