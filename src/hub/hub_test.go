package hub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/commonloop/realtime/src/types"
)

// mockConn implements types.Conn for testing without a real WebSocket.
type mockConn struct {
	mu       sync.Mutex
	written  []types.ServerFrame
	readCh   chan []byte
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case p := <-m.readCh:
		return 1, p, nil
	case <-m.closedCh:
		return 0, nil, errors.New("connection closed")
	}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if frame, ok := v.(types.ServerFrame); ok {
		m.written = append(m.written, frame)
	}
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) frames() []types.ServerFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]types.ServerFrame, len(m.written))
	copy(cp, m.written)
	return cp
}

func (m *mockConn) framesOfType(t string) []types.ServerFrame {
	var out []types.ServerFrame
	for _, f := range m.frames() {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// newTestHub creates a hub and starts its event loop in a goroutine.
func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := New(zerolog.Nop())
	go h.Run()
	t.Cleanup(func() { h.Stop() })
	return h
}

// admitClient creates, registers, and starts a mock client.
func admitClient(t *testing.T, h *Hub, id, did string) (*Client, *mockConn) {
	t.Helper()
	conn := newMockConn()
	client := NewClient(id, did, conn, h)
	h.Register(client)
	go client.WritePump()
	go client.ReadPump()
	// Allow registration to process.
	time.Sleep(20 * time.Millisecond)
	return client, conn
}

func TestAdmitAndCount(t *testing.T) {
	h := newTestHub(t)

	_, _ = admitClient(t, h, "c1", "alice")
	_, _ = admitClient(t, h, "c2", "bob")

	if got := h.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}
	if !h.IsOnline("alice") || !h.IsOnline("bob") {
		t.Error("expected both identities online")
	}
	if h.IsOnline("carol") {
		t.Error("carol should not be online")
	}
}

func TestPresenceTransitions(t *testing.T) {
	h := newTestHub(t)

	var mu sync.Mutex
	var online, offline []string
	h.OnIdentityOnline(func(did string) {
		mu.Lock()
		online = append(online, did)
		mu.Unlock()
	})
	h.OnIdentityOffline(func(did string) {
		mu.Lock()
		offline = append(offline, did)
		mu.Unlock()
	})

	_, conn1 := admitClient(t, h, "a1", "alice")
	_, conn2 := admitClient(t, h, "a2", "alice")

	mu.Lock()
	if len(online) != 1 || online[0] != "alice" {
		t.Fatalf("expected exactly one online transition for alice, got %v", online)
	}
	mu.Unlock()

	// First connection closing must not mark alice offline.
	conn1.Close()
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	if len(offline) != 0 {
		t.Fatalf("offline fired with a connection still live: %v", offline)
	}
	mu.Unlock()
	if !h.IsOnline("alice") {
		t.Fatal("alice should still be online via second connection")
	}

	conn2.Close()
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	if len(offline) != 1 || offline[0] != "alice" {
		t.Fatalf("expected exactly one offline transition for alice, got %v", offline)
	}
	mu.Unlock()
	if h.IsOnline("alice") {
		t.Error("alice should be offline after last connection closed")
	}
}

func TestDispatchExcludesIdentity(t *testing.T) {
	h := newTestHub(t)

	a1, connA1 := admitClient(t, h, "a1", "alice")
	a2, connA2 := admitClient(t, h, "a2", "alice")
	b, connB := admitClient(t, h, "b1", "bob")

	h.Subscribe(a1, "conv1")
	h.Subscribe(a2, "conv1")
	h.Subscribe(b, "conv1")

	h.Dispatch("conv1", types.ServerFrame{Type: types.FrameUserTyping, ConversationID: "conv1", DID: "alice"}, "alice")
	time.Sleep(30 * time.Millisecond)

	if got := len(connB.frames()); got != 1 {
		t.Errorf("bob expected 1 frame, got %d", got)
	}
	if got := len(connA1.frames()) + len(connA2.frames()); got != 0 {
		t.Errorf("alice connections should be excluded, got %d frames", got)
	}
}

func TestDispatchWithoutExclusionReachesAll(t *testing.T) {
	h := newTestHub(t)

	a, connA := admitClient(t, h, "a1", "alice")
	b, connB := admitClient(t, h, "b1", "bob")
	h.Subscribe(a, "conv1")
	h.Subscribe(b, "conv1")

	h.Dispatch("conv1", types.ServerFrame{Type: types.FrameNewMessage}, "")
	time.Sleep(30 * time.Millisecond)

	if len(connA.frames()) != 1 || len(connB.frames()) != 1 {
		t.Errorf("expected both subscribers to receive the frame, got %d and %d",
			len(connA.frames()), len(connB.frames()))
	}
}

func TestDispatchNoSubscribersIsNoop(t *testing.T) {
	h := newTestHub(t)
	_, conn := admitClient(t, h, "c1", "alice")

	h.Dispatch("empty-conv", types.ServerFrame{Type: types.FrameNewMessage}, "")
	time.Sleep(20 * time.Millisecond)

	if len(conn.frames()) != 0 {
		t.Error("unsubscribed connection received a frame")
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	h := newTestHub(t)
	c, conn := admitClient(t, h, "c1", "alice")

	h.Subscribe(c, "conv1")
	h.Subscribe(c, "conv1")

	if got := h.Conversations()["conv1"]; got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	h.Dispatch("conv1", types.ServerFrame{Type: types.FrameNewMessage}, "")
	time.Sleep(30 * time.Millisecond)

	if got := len(conn.frames()); got != 1 {
		t.Errorf("expected 1 frame after duplicate subscribe, got %d", got)
	}
}

func TestRemoveCleansSubscriptions(t *testing.T) {
	h := newTestHub(t)
	c, conn := admitClient(t, h, "c1", "alice")
	h.Subscribe(c, "conv1")

	conn.Close()
	time.Sleep(30 * time.Millisecond)

	if len(h.Conversations()) != 0 {
		t.Error("expected empty subscriber sets after connection close")
	}
	// Dispatch to the now-empty conversation must not error or deliver.
	h.Dispatch("conv1", types.ServerFrame{Type: types.FrameNewMessage}, "")
	time.Sleep(20 * time.Millisecond)
	if got := len(conn.frames()); got != 0 {
		t.Errorf("closed connection received %d frames", got)
	}
}

func TestMalformedFrameErrorAck(t *testing.T) {
	h := newTestHub(t)
	h.RegisterHandler(types.FramePing, func(c *Client, _ types.ClientFrame) {
		c.TrySend(types.ServerFrame{Type: types.FramePong})
	})
	_, conn := admitClient(t, h, "c1", "alice")

	conn.readCh <- []byte(`{not json`)
	time.Sleep(30 * time.Millisecond)

	if got := len(conn.framesOfType(types.FrameError)); got != 1 {
		t.Fatalf("expected 1 error ack, got %d", got)
	}

	// The connection survives and keeps processing frames.
	conn.readCh <- []byte(`{"type":"ping"}`)
	time.Sleep(30 * time.Millisecond)
	if got := len(conn.framesOfType(types.FramePong)); got != 1 {
		t.Errorf("expected pong after malformed frame, got %d", got)
	}
}

func TestUnknownFrameTypeErrorAck(t *testing.T) {
	h := newTestHub(t)
	_, conn := admitClient(t, h, "c1", "alice")

	conn.readCh <- []byte(`{"type":"teleport"}`)
	time.Sleep(30 * time.Millisecond)

	if got := len(conn.framesOfType(types.FrameError)); got != 1 {
		t.Errorf("expected 1 error ack for unknown type, got %d", got)
	}
}

func TestGetClientInfo(t *testing.T) {
	h := newTestHub(t)
	c, _ := admitClient(t, h, "c1", "alice")
	h.Subscribe(c, "conv1")
	h.Subscribe(c, "conv2")

	info := h.GetClientInfo("c1")
	if info == nil {
		t.Fatal("expected client info")
	}
	if info.DID != "alice" {
		t.Errorf("expected did alice, got %s", info.DID)
	}
	if len(info.Conversations) != 2 {
		t.Errorf("expected 2 conversations, got %d", len(info.Conversations))
	}
	if h.GetClientInfo("ghost") != nil {
		t.Error("expected nil info for unknown connection")
	}
}
