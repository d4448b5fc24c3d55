package hub

import "time"

// ClientInfo holds metadata about a connected client.
type ClientInfo struct {
	ID            string    `json:"id"`
	DID           string    `json:"did"`
	ConnectedAt   time.Time `json:"connected_at"`
	Conversations []string  `json:"conversations"`
}

// RegisterHandler registers a handler for a client frame type.
func (h *Hub) RegisterHandler(frameType string, handler FrameHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[frameType] = handler
}

// OnIdentityOnline registers a callback fired when an identity's first
// connection is admitted.
func (h *Hub) OnIdentityOnline(cb func(did string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onOnline = append(h.onOnline, cb)
}

// OnIdentityOffline registers a callback fired when an identity's last
// connection is removed.
func (h *Hub) OnIdentityOffline(cb func(did string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onOffline = append(h.onOffline, cb)
}

// IsOnline reports whether the identity has at least one live connection.
func (h *Hub) IsOnline(did string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.identities[did]) > 0
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Conversations returns conversation ids with their subscriber counts.
func (h *Hub) Conversations() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make(map[string]int, len(h.subscribers))
	for conv, subs := range h.subscribers {
		result[conv] = len(subs)
	}
	return result
}

// GetClientInfo returns info for a live connection, or nil.
func (h *Hub) GetClientInfo(connID string) *ClientInfo {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	info := c.Info()
	return &info
}
