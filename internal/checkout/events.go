package checkout

import (
	"sync"
	"time"

	"SokoCheckout/internal/models"
)

// Event is one checkout state broadcast. The orchestrator is the only
// writer; WebSocket subscribers and tests are the readers.
type Event struct {
	SessionID string               `json:"sessionId"`
	State     models.CheckoutState `json:"state"`
	OrderID   *int64               `json:"orderId,omitempty"`
	Message   string               `json:"message,omitempty"`
	Error     string               `json:"error,omitempty"`
	Terminal  bool                 `json:"terminal"`
	At        time.Time            `json:"at"`
}

// Hub fans checkout events out to per-session subscribers. Slow readers
// are skipped rather than blocking the orchestrator.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a reader for one session. The returned cancel
// function must be called to release the channel.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[sessionID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
