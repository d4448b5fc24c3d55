package hub

import (
	"github.com/commonloop/realtime/src/types"
)

// Subscribe adds the connection to a conversation's subscriber set.
// Idempotent; subscriptions only shrink when the connection closes.
func (h *Hub) Subscribe(c *Client, conversationID string) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	if h.subscribers[conversationID] == nil {
		h.subscribers[conversationID] = make(map[string]bool)
	}
	h.subscribers[conversationID][c.ID] = true
	h.mu.Unlock()

	c.addSubscription(conversationID)
	h.logger.Debug().
		Str("conn_id", c.ID).
		Str("conversation_id", conversationID).
		Msg("subscribed")
}

// Dispatch pushes a frame to every live connection subscribed to the
// conversation, skipping connections owned by excludeDID. The subscriber
// set is snapshotted under the read lock, then sends are non-blocking per
// connection: one slow or dead receiver never delays the rest. A
// conversation with no subscribers is a no-op, not an error.
func (h *Hub) Dispatch(conversationID string, frame types.ServerFrame, excludeDID string) {
	h.mu.RLock()
	subs := h.subscribers[conversationID]
	targets := make([]*Client, 0, len(subs))
	for id := range subs {
		c, ok := h.clients[id]
		if !ok {
			continue
		}
		if excludeDID != "" && c.DID == excludeDID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.TrySend(frame) {
			h.logger.Warn().
				Str("conn_id", c.ID).
				Str("type", frame.Type).
				Msg("send buffer full, dropping frame")
		}
	}
}
