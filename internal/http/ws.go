package http

import (
	"errors"
	"log"
	"net/http"
	"time"

	"SokoCheckout/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS policy is handled at the router; the SPA origin varies per
	// deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamEvents upgrades to a WebSocket and forwards checkout state
// transitions for one session until a terminal event or disconnect.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	// Subscribe before reading the snapshot so a transition published
	// while the snapshot is being fetched is buffered, not lost.
	events, cancel := h.Events.Subscribe(sessionID)
	defer cancel()

	sess, err := h.Store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "checkout session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get checkout session failed")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Snapshot first so a subscriber joining mid-flow sees where the
	// session stands.
	if err := conn.WriteJSON(sessionToResponse(sess)); err != nil {
		return
	}
	if sess.State == models.StateCompleted || sess.FailureMessage != nil {
		return
	}

	// Reads are discarded; the read loop only notices the peer going
	// away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("ws write failed session=%s: %v", sessionID, err)
				return
			}
			if ev.Terminal {
				return
			}
		}
	}
}
