package handlers

import (
	"net/http"
	"strconv"

	"github.com/shivamSspirit/volition/internal/service"
)

type LessonHandler struct {
	svc *service.EpisodicService
}

func NewLessonHandler(svc *service.EpisodicService) *LessonHandler {
	return &LessonHandler{svc: svc}
}

// List returns all lessons, or the most relevant ones when ?situation= is
// given.
func (h *LessonHandler) List(w http.ResponseWriter, r *http.Request) {
	situation := r.URL.Query().Get("situation")
	if situation == "" {
		lessons := h.svc.Lessons()
		writeJSON(w, http.StatusOK, map[string]any{
			"lessons": lessons,
			"count":   len(lessons),
		})
		return
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	lessons, err := h.svc.GetRelevantLessons(r.Context(), situation, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve lessons")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lessons": lessons,
		"count":   len(lessons),
	})
}

// Episodes returns the most recent episodes, newest last.
func (h *LessonHandler) Episodes(w http.ResponseWriter, r *http.Request) {
	n := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		n = v
	}
	episodes := h.svc.RecentEpisodes(n)
	writeJSON(w, http.StatusOK, map[string]any{
		"episodes": episodes,
		"count":    len(episodes),
	})
}
