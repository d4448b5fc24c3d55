package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/commonloop/realtime/src/types"
)

// Client wraps one live WebSocket connection. The owning identity is
// assigned at admission and immutable for the connection's lifetime.
type Client struct {
	ID  string
	DID string

	conn          types.Conn
	hub           *Hub
	Send          chan types.ServerFrame
	connectedAt   time.Time
	subscriptions map[string]bool // conversation ids, grow-only
	mu            sync.RWMutex
	done          chan struct{}
	closed        bool
}

// NewClient creates a connection wrapper bound to an authenticated identity.
func NewClient(id, did string, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:            id,
		DID:           did,
		conn:          conn,
		hub:           h,
		Send:          make(chan types.ServerFrame, 256),
		connectedAt:   time.Now(),
		subscriptions: make(map[string]bool),
		done:          make(chan struct{}),
	}
}

// Info returns metadata about this connection.
func (c *Client) Info() ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	convs := make([]string, 0, len(c.subscriptions))
	for conv := range c.subscriptions {
		convs = append(convs, conv)
	}
	return ClientInfo{
		ID:            c.ID,
		DID:           c.DID,
		ConnectedAt:   c.connectedAt,
		Conversations: convs,
	}
}

func (c *Client) addSubscription(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[conversationID] = true
}

// ReadPump reads frames from the socket and routes them through the hub.
// A payload that does not decode as a control frame gets one best-effort
// error acknowledgment and does not tear down the connection; only socket
// errors end the pump.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame types.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
			c.TrySend(types.ErrorFrame("unrecognized frame"))
			continue
		}
		c.hub.inbound <- inboundFrame{client: c, frame: frame}
	}
}

// WritePump writes frames from the send channel to the WebSocket.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case frame, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// TrySend queues a frame without blocking. A full buffer or an already
// closed connection drops the frame and reports false; a dead receiver
// never stalls the sender.
func (c *Client) TrySend(frame types.ServerFrame) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// Close signals the client to stop its pumps. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.Send)
	}
}
