package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/domain"
)

// ─── Progress API ───────────────────────────────────────────────────────────
//
// GET  /api/catalog                           — versioned badge catalog
// GET  /api/users/{user}/progress             — record + level breakdown
// GET  /api/users/{user}/xp?limit=            — XP history, newest first
// GET  /api/users/{user}/badges               — catalog with unlock status
// POST /api/users/{user}/actions/{action}     — log action, then dispatch
// POST /api/users/{user}/reconcile            — re-run badge evaluation
// GET  /api/users/{user}/verify               — ledger audit

// handleCatalog returns the versioned badge catalog.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Engine.Catalog())
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Engine.GetProgress(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Engine.View(rec))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := gamification.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	events, err := s.deps.Engine.GetXPHistory(r.Context(), chi.URLParam(r, "user"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Engine.GetProgress(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"catalog_version": s.deps.Engine.Catalog().Version,
		"badges":          s.deps.Engine.Badges.Statuses(rec),
	})
}

// actionRequest is the optional body of an action post.
type actionRequest struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// actionResponse carries the recorded action and the gamification outcome.
// Warnings are informational: the action itself was stored.
type actionResponse struct {
	Action      domain.Action        `json:"action"`
	Outcome     gamification.Outcome `json:"outcome"`
	Warnings    []string             `json:"warnings,omitempty"`
	Redelivered bool                 `json:"redelivery_scheduled,omitempty"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseActionKind(chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.ID == "" {
		req.ID = s.newID()
	}
	now := s.deps.Clock.Now()
	if req.OccurredAt.IsZero() {
		req.OccurredAt = now
	}
	if err := gamification.CheckOccurredAt(now, req.OccurredAt); err != nil {
		s.fail(w, r, err)
		return
	}

	action := domain.Action{ID: req.ID, UserID: chi.URLParam(r, "user"), Kind: kind, OccurredAt: req.OccurredAt}
	if s.deps.Actions != nil {
		if err := s.deps.Actions.LogAction(r.Context(), action); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	// The action is stored; a client disconnect must not abort its rewards.
	ctx := context.WithoutCancel(r.Context())
	trigger := gamification.Trigger{
		UserID: action.UserID, Action: kind, SourceID: action.ID, At: action.OccurredAt,
	}
	out := s.deps.Engine.Dispatch(ctx, trigger)
	resp := actionResponse{Action: action, Outcome: out, Warnings: out.Warnings()}
	if err := out.Retryable(); err != nil && s.deps.Redelivery != nil {
		resp.Redelivered = s.deps.Redelivery.Redeliver(trigger, err)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	earned, err := s.deps.Engine.Reconcile(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if earned == nil {
		earned = []domain.Badge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"earned": earned})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Engine.Verify(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := map[string]any{"report": report, "ok": true}
	if verr := report.Err(); verr != nil {
		resp["ok"] = false
		resp["error"] = verr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
