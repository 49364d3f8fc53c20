package websocket

import (
	"fmt"
	"sort"
	"sync"

	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/internal/port"
	"github.com/SphrGhfri/roomchat/pkg/logger"
)

// Hub maps participant ids to their single live connection handle.
// It knows nothing about rooms.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]port.Handle
	log     logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]port.Handle),
		log:     log.WithModule("hub"),
	}
}

// Connect registers h for participantID. A previous handle for the same id is
// replaced and closed.
func (h *Hub) Connect(participantID string, handle port.Handle) {
	h.mu.Lock()
	old, existed := h.clients[participantID]
	h.clients[participantID] = handle
	h.mu.Unlock()

	if existed && old != handle {
		h.log.WithFields(map[string]interface{}{
			"participant_id": participantID,
		}).Warnf("Replacing existing connection")
		_ = old.Close()
	}
}

// Disconnect removes and closes the participant's handle. Unknown ids are ignored.
func (h *Hub) Disconnect(participantID string) {
	h.mu.Lock()
	handle, ok := h.clients[participantID]
	delete(h.clients, participantID)
	h.mu.Unlock()

	if ok {
		_ = handle.Close()
	}
}

// Release removes participantID only while it is still bound to handle.
func (h *Hub) Release(participantID string, handle port.Handle) bool {
	h.mu.Lock()
	current, ok := h.clients[participantID]
	if !ok || current != handle {
		h.mu.Unlock()
		return false
	}
	delete(h.clients, participantID)
	h.mu.Unlock()

	_ = handle.Close()
	return true
}

// Send delivers payload to the participant's live handle. A failed handle is
// dropped from the hub before the error is returned.
func (h *Hub) Send(participantID string, payload []byte) error {
	h.mu.RLock()
	handle, ok := h.clients[participantID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotConnected, participantID)
	}
	if err := handle.Send(payload); err != nil {
		h.Release(participantID, handle)
		h.log.WithFields(map[string]interface{}{
			"participant_id": participantID,
			"error":          err.Error(),
		}).Warnf("Dropped connection after failed send")
		return fmt.Errorf("%w: %s: %v", domain.ErrSendFailure, participantID, err)
	}
	return nil
}

func (h *Hub) IsConnected(participantID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[participantID]
	return ok
}

func (h *Hub) Connected() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.clients))
	for id := range h.clients {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close gracefully shuts down the Hub, closing all connections.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]port.Handle)
	h.mu.Unlock()

	for _, handle := range clients {
		_ = handle.Close()
	}
}
