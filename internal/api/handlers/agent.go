package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/service"
)

type AgentHandler struct {
	svc *service.CoordinatorService
}

func NewAgentHandler(svc *service.CoordinatorService) *AgentHandler {
	return &AgentHandler{svc: svc}
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents := h.svc.Agents()
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
		"count":  len(agents),
	})
}

func (h *AgentHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := h.svc.DetectConflicts()
	writeJSON(w, http.StatusOK, map[string]any{
		"conflicts":   conflicts,
		"count":       len(conflicts),
		"escalations": h.svc.Escalations(),
	})
}

type delegateRequest struct {
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Priority     float64  `json:"priority"`
	Capabilities []string `json:"capabilities,omitempty"`
}

func (h *AgentHandler) Delegate(w http.ResponseWriter, r *http.Request) {
	var req delegateRequest
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

	goal, agentID, err := h.svc.DelegateGoal(r.Context(), typ, req.Description, req.Priority, req.Capabilities)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"goal":     goal,
		"agent_id": agentID,
	})
}
