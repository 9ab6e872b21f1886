package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/service"
)

type SignalHandler struct {
	svc *service.WorldService
}

func NewSignalHandler(svc *service.WorldService) *SignalHandler {
	return &SignalHandler{svc: svc}
}

type createSignalRequest struct {
	Type     string  `json:"type"`
	Source   string  `json:"source"`
	Content  string  `json:"content"`
	Strength float64 `json:"strength"`
}

var validSignalTypes = map[domain.SignalType]bool{
	domain.SignalPriceMovement:        true,
	domain.SignalVolumeSpike:          true,
	domain.SignalWhaleActivity:        true,
	domain.SignalNewsSentiment:        true,
	domain.SignalArbitrageOpportunity: true,
	domain.SignalPredictionResolution: true,
	domain.SignalUserRequest:          true,
	domain.SignalScheduledTask:        true,
}

func (h *SignalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	typ := domain.SignalType(req.Type)
	if !validSignalTypes[typ] {
		writeError(w, http.StatusBadRequest, "invalid signal type")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	// Out-of-range strength is clamped by the service, never rejected.
	sig, err := h.svc.AddSignal(r.Context(), typ, req.Source, req.Content, req.Strength)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add signal")
		return
	}

	writeJSON(w, http.StatusCreated, sig)
}
