package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/wellspring-app/wellspring/internal/domain"
)

// ─── Live Progress Feed ─────────────────────────────────────────────────────
// Server-Sent Events on GET /api/users/{user}/live. Each committed progress
// change is pushed to that user's subscribers.

// LiveEvent is one message on the feed.
type LiveEvent struct {
	Type    string          `json:"type"` // "xp_granted" or "badge_unlocked"
	UserID  string          `json:"user_id"`
	Event   *domain.XPEvent `json:"event,omitempty"`
	Badge   *domain.Badge   `json:"badge,omitempty"`
	TotalXP int64           `json:"total_xp"`
	Level   int             `json:"level"`
}

type subscriber struct {
	user string
	ch   chan []byte
}

// LiveHub fans progress commits out to SSE clients. It implements
// gamification.Observer.
type LiveHub struct {
	mu      sync.Mutex
	clients map[*subscriber]struct{}
}

// NewLiveHub creates an empty hub.
func NewLiveHub() *LiveHub {
	return &LiveHub{clients: make(map[*subscriber]struct{})}
}

// Subscribe registers a client for userID. Returns the channel and an
// unsubscribe func.
func (h *LiveHub) Subscribe(userID string) (<-chan []byte, func()) {
	sub := &subscriber{user: userID, ch: make(chan []byte, 32)}
	h.mu.Lock()
	h.clients[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, sub)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// ClientCount returns the number of connected clients.
func (h *LiveHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends ev to the subscribers of ev.UserID. Slow clients drop.
func (h *LiveHub) Broadcast(ev LiveEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.clients {
		if sub.user != ev.UserID {
			continue
		}
		select {
		case sub.ch <- data:
		default:
		}
	}
}

// ProgressCommitted implements gamification.Observer.
func (h *LiveHub) ProgressCommitted(_ context.Context, _, after domain.ProgressRecord, c domain.ProgressCommit) {
	for i := range c.Events {
		h.Broadcast(LiveEvent{Type: "xp_granted", UserID: after.UserID, Event: &c.Events[i], TotalXP: after.TotalXP, Level: after.Level})
	}
	for i := range c.Badges {
		h.Broadcast(LiveEvent{Type: "badge_unlocked", UserID: after.UserID, Badge: &c.Badges[i], TotalXP: after.TotalXP, Level: after.Level})
	}
}

// handleLive serves the user's feed.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.deps.Live == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsub := s.deps.Live.Subscribe(chi.URLParam(r, "user"))
	defer unsub()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
