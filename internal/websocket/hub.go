package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/stayverify/stayverify/internal/model"
)

// Message is a real-time update pushed to a manager's open dashboards.
type Message struct {
	Type       string                 `json:"type"`
	ID         int64                  `json:"id,omitempty"`
	PublicID   string                 `json:"public_id,omitempty"`
	Status     model.SubmissionStatus `json:"status,omitempty"`
	Submission *model.Submission      `json:"submission,omitempty"`
}

// Hub maintains the set of active WebSocket clients, keyed by the owning
// user, and fans submission updates out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// SubmissionUpdated notifies the owner's connected dashboards that a
// submission changed.
func (h *Hub) SubmissionUpdated(userID int64, sub *model.Submission) {
	h.BroadcastTo(userID, Message{
		Type:       "submission_updated",
		ID:         sub.ID,
		PublicID:   sub.PublicID,
		Status:     sub.Status,
		Submission: sub,
	})
}

// BroadcastTo sends a message to every client belonging to one user.
func (h *Hub) BroadcastTo(userID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.userID != userID {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop rather than block the hub
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
