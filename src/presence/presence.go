package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/commonloop/realtime/src/types"
)

// DefaultCallTimeout bounds each collaborator call made off the socket path.
const DefaultCallTimeout = 5 * time.Second

// Dispatcher fans a frame out to a conversation's subscribers.
type Dispatcher interface {
	Dispatch(conversationID string, frame types.ServerFrame, excludeDID string)
}

// MembershipResolver resolves the conversations an identity participates in.
type MembershipResolver interface {
	ConversationsFor(ctx context.Context, did string) ([]string, error)
}

// LastSeenStore durably records when an identity was last online. Writes are
// last-write-wins; near-simultaneous writers are harmless.
type LastSeenStore interface {
	Touch(ctx context.Context, did string, at time.Time) error
}

// Broadcaster announces identity online/offline transitions to every
// conversation the identity belongs to. All collaborator calls run as
// detached background work: a slow or failing resolver or store never
// delays connection admission or removal, and failures are logged, not
// retried.
type Broadcaster struct {
	dispatch Dispatcher
	members  MembershipResolver
	lastSeen LastSeenStore
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewBroadcaster creates a presence broadcaster.
func NewBroadcaster(d Dispatcher, m MembershipResolver, ls LastSeenStore, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		dispatch: d,
		members:  m,
		lastSeen: ls,
		timeout:  DefaultCallTimeout,
		logger:   logger.With().Str("component", "presence").Logger(),
	}
}

// IdentityOnline handles an identity's first connection being admitted.
func (b *Broadcaster) IdentityOnline(did string) {
	go b.announce(did, true, time.Time{})
}

// IdentityOffline handles an identity's last connection closing.
func (b *Broadcaster) IdentityOffline(did string) {
	now := time.Now().UTC()
	go b.announce(did, false, now)
	go b.recordLastSeen(did, now)
}

func (b *Broadcaster) announce(did string, online bool, lastSeen time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	convs, err := b.members.ConversationsFor(ctx, did)
	if err != nil {
		b.logger.Error().Err(err).Str("did", did).Msg("conversation resolution failed, presence not announced")
		return
	}

	frame := types.ServerFrame{
		Type:   types.FrameUserPresence,
		DID:    did,
		Online: &online,
	}
	if !online {
		frame.LastSeen = lastSeen.Format(time.RFC3339)
	}
	for _, conv := range convs {
		b.dispatch.Dispatch(conv, frame, "")
	}
}

func (b *Broadcaster) recordLastSeen(did string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if err := b.lastSeen.Touch(ctx, did, at); err != nil {
		b.logger.Warn().Err(err).Str("did", did).Msg("last-seen write failed")
	}
}
