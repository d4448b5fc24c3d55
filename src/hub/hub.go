package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/commonloop/realtime/src/types"
)

// FrameHandler processes one decoded control frame from a client.
type FrameHandler func(c *Client, frame types.ClientFrame)

// Hub is the connection registry. It is the single owner of all live
// connection state: connection handles, identity connection sets, and
// per-conversation subscriber sets. All mutation goes through its
// register/unregister/subscribe/dispatch operations.
type Hub struct {
	clients     map[string]*Client            // connID -> client
	identities  map[string]map[string]*Client // did -> connID -> client
	subscribers map[string]map[string]bool    // conversationId -> set of connIDs

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame

	handlers  map[string]FrameHandler
	onOnline  []func(did string)
	onOffline []func(did string)

	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
}

type inboundFrame struct {
	client *Client
	frame  types.ClientFrame
}

// New creates a new Hub instance.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		identities:  make(map[string]map[string]*Client),
		subscribers: make(map[string]map[string]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		inbound:     make(chan inboundFrame, 256),
		handlers:    make(map[string]FrameHandler),
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Run starts the hub event loop. Call in a goroutine. Registration, removal,
// and inbound frame handling are serialized here, so frame handlers never
// race with lifecycle transitions for the same connection.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.admit(client)
		case client := <-h.unregister:
			h.remove(client)
		case in := <-h.inbound:
			h.handleFrame(in)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop.
func (h *Hub) Stop() {
	close(h.done)
}

// Register queues a connection for admission.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister queues a connection for removal.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// admit registers the connection under its identity. The first connection
// for an identity marks the online transition.
func (h *Hub) admit(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	set := h.identities[c.DID]
	first := len(set) == 0
	if set == nil {
		set = make(map[string]*Client)
		h.identities[c.DID] = set
	}
	set[c.ID] = c
	h.mu.Unlock()

	h.logger.Info().
		Str("conn_id", c.ID).
		Str("did", c.DID).
		Bool("first_connection", first).
		Msg("connection admitted")

	if first {
		for _, cb := range h.onOnline {
			cb(c.DID)
		}
	}
}

// remove deletes the connection from every map it appears in. The last
// connection for an identity marks the offline transition.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	for conv, subs := range h.subscribers {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.subscribers, conv)
		}
	}

	last := false
	if set, ok := h.identities[c.DID]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.identities, c.DID)
			last = true
		}
	}
	h.mu.Unlock()

	c.Close()
	h.logger.Info().
		Str("conn_id", c.ID).
		Str("did", c.DID).
		Bool("last_connection", last).
		Msg("connection removed")

	if last {
		for _, cb := range h.onOffline {
			cb(c.DID)
		}
	}
}

func (h *Hub) handleFrame(in inboundFrame) {
	h.mu.RLock()
	handler, ok := h.handlers[in.frame.Type]
	h.mu.RUnlock()

	if !ok {
		h.logger.Debug().Str("type", in.frame.Type).Msg("unknown frame type")
		in.client.TrySend(types.ErrorFrame("unknown frame type: " + in.frame.Type))
		return
	}
	handler(in.client, in.frame)
}
