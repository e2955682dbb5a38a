package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// GET /api/users/{user}/notifications
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications not enabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	pending, err := s.deps.Notifier.Pending(r.Context(), chi.URLParam(r, "user"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": pending})
}

// POST /api/users/{user}/notifications/{id}/shown
func (s *Server) handleNotificationShown(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications not enabled")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := s.deps.Notifier.MarkShown(r.Context(), chi.URLParam(r, "user"), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "shown": true})
}
