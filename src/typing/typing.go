package typing

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/commonloop/realtime/src/types"
)

// DefaultTimeout is how long a typing entry survives without a fresh signal.
const DefaultTimeout = 5 * time.Second

// Dispatcher fans a frame out to a conversation's subscribers.
type Dispatcher interface {
	Dispatch(conversationID string, frame types.ServerFrame, excludeDID string)
}

type key struct {
	conversation string
	did          string
}

// entry is one active "identity is typing in conversation" state. At most
// one entry exists per (conversation, identity) pair; a fresh signal resets
// the existing entry's timer instead of creating a duplicate.
type entry struct {
	name  string
	timer *time.Timer
}

// Tracker owns all typing entries and their expiry timers. Transitions for
// a single entry are serialized under the tracker mutex; a timer that fires
// after its entry was destroyed observes the entry gone and no-ops.
type Tracker struct {
	mu       sync.Mutex
	entries  map[key]*entry
	timeout  time.Duration
	dispatch Dispatcher
	logger   zerolog.Logger
}

// NewTracker creates a typing tracker broadcasting through d.
func NewTracker(d Dispatcher, timeout time.Duration, logger zerolog.Logger) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		entries:  make(map[key]*entry),
		timeout:  timeout,
		dispatch: d,
		logger:   logger,
	}
}

// Signal records a typing signal from an identity. A new entry broadcasts
// user_typing to the conversation, excluding the sender; a repeated signal
// only re-arms the expiry timer.
func (t *Tracker) Signal(conversationID, did, name string) {
	k := key{conversation: conversationID, did: did}

	t.mu.Lock()
	prev, existed := t.entries[k]
	if existed {
		// Re-arm by replacing the entry outright: a fired timer callback
		// waiting on the lock then fails the identity check and no-ops.
		prev.timer.Stop()
	}
	e := &entry{name: name}
	e.timer = time.AfterFunc(t.timeout, func() { t.expire(k, e) })
	t.entries[k] = e
	t.mu.Unlock()

	if existed {
		return
	}

	t.dispatch.Dispatch(conversationID, types.ServerFrame{
		Type:           types.FrameUserTyping,
		ConversationID: conversationID,
		DID:            did,
		Name:           name,
	}, did)
}

// Stop destroys the typing entry for (conversation, identity) if one exists,
// cancelling its timer and broadcasting user_stop_typing. Calling it for an
// absent entry is a no-op.
func (t *Tracker) Stop(conversationID, did string) {
	k := key{conversation: conversationID, did: did}

	t.mu.Lock()
	e, ok := t.entries[k]
	if ok {
		e.timer.Stop()
		delete(t.entries, k)
	}
	t.mu.Unlock()

	if ok {
		t.broadcastStop(k)
	}
}

// SweepIdentity destroys every typing entry owned by the identity across all
// conversations. Called when the identity's last connection closes; the
// sender exclusion on the stop broadcast is a harmless no-op at that point.
func (t *Tracker) SweepIdentity(did string) {
	t.mu.Lock()
	var swept []key
	for k, e := range t.entries {
		if k.did == did {
			e.timer.Stop()
			delete(t.entries, k)
			swept = append(swept, k)
		}
	}
	t.mu.Unlock()

	for _, k := range swept {
		t.broadcastStop(k)
	}
	if len(swept) > 0 {
		t.logger.Debug().Str("did", did).Int("entries", len(swept)).Msg("typing entries swept on disconnect")
	}
}

// Active returns the number of live typing entries.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// expire is the timer callback. It revalidates under the lock that the entry
// it was armed for is still current, so a timer racing a cancellation or a
// replacement is idempotent.
func (t *Tracker) expire(k key, e *entry) {
	t.mu.Lock()
	cur, ok := t.entries[k]
	if !ok || cur != e {
		t.mu.Unlock()
		return
	}
	delete(t.entries, k)
	t.mu.Unlock()

	t.broadcastStop(k)
}

func (t *Tracker) broadcastStop(k key) {
	t.dispatch.Dispatch(k.conversation, types.ServerFrame{
		Type:           types.FrameUserStopTyping,
		ConversationID: k.conversation,
		DID:            k.did,
	}, k.did)
}
