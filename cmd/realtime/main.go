package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/commonloop/realtime/config"
	"github.com/commonloop/realtime/src/hub"
	"github.com/commonloop/realtime/src/platform"
	"github.com/commonloop/realtime/src/presence"
	"github.com/commonloop/realtime/src/server"
	"github.com/commonloop/realtime/src/typing"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.FromEnv()

	h := hub.New(logger)
	api := platform.NewClient(platform.Config{
		BaseURL: cfg.PlatformURL,
		Timeout: cfg.AuthTimeout,
	}, logger)

	lastSeen := newLastSeenStore(api, logger)
	tracker := typing.NewTracker(h, cfg.TypingTimeout, logger)
	broadcaster := presence.NewBroadcaster(h, api, lastSeen, logger)

	h.OnIdentityOnline(broadcaster.IdentityOnline)
	h.OnIdentityOffline(func(did string) {
		tracker.SweepIdentity(did)
		broadcaster.IdentityOffline(did)
	})

	srv := server.New(cfg, h, tracker, api, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

// newLastSeenStore prefers Redis for last-seen persistence; if Redis is
// unreachable the server runs against the platform API instead.
func newLastSeenStore(api *platform.Client, logger zerolog.Logger) presence.LastSeenStore {
	rcfg := presence.RedisConfigFromEnv()
	store := presence.NewRedisLastSeen(rcfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("redis_addr", rcfg.Addr).Msg("redis unavailable, using platform API for last-seen")
		_ = store.Close()
		return api
	}
	logger.Info().Str("redis_addr", rcfg.Addr).Msg("redis last-seen store connected")
	return store
}
