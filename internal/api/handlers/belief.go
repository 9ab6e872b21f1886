package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/service"
)

type BeliefHandler struct {
	svc *service.WorldService
}

func NewBeliefHandler(svc *service.WorldService) *BeliefHandler {
	return &BeliefHandler{svc: svc}
}

// List returns beliefs filtered by the optional ?q= substring, sorted by
// confidence.
func (h *BeliefHandler) List(w http.ResponseWriter, r *http.Request) {
	beliefs := h.svc.GetBeliefs(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{
		"beliefs": beliefs,
		"count":   len(beliefs),
	})
}

type createBeliefRequest struct {
	Content       string  `json:"content"`
	Confidence    float64 `json:"confidence"`
	Source        string  `json:"source"`
	ExpirySeconds *int64  `json:"expiry_seconds,omitempty"`
}

var validBeliefSources = map[domain.BeliefSource]bool{
	domain.SourceObservation: true,
	domain.SourceInference:   true,
	domain.SourceExternal:    true,
	domain.SourceUser:        true,
}

// Create injects a belief from an external caller.
func (h *BeliefHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBeliefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	source := domain.BeliefSource(req.Source)
	if source == "" {
		source = domain.SourceExternal
	}
	if !validBeliefSources[source] {
		writeError(w, http.StatusBadRequest, "invalid belief source")
		return
	}

	var expiry *time.Duration
	if req.ExpirySeconds != nil {
		if *req.ExpirySeconds <= 0 {
			writeError(w, http.StatusBadRequest, "expiry_seconds must be positive")
			return
		}
		d := time.Duration(*req.ExpirySeconds) * time.Second
		expiry = &d
	}

	belief, err := h.svc.AddBelief(r.Context(), req.Content, req.Confidence, source, expiry, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add belief")
		return
	}
	writeJSON(w, http.StatusCreated, belief)
}
