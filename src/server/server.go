package server

import (
	"context"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/commonloop/realtime/config"
	"github.com/commonloop/realtime/src/hub"
	"github.com/commonloop/realtime/src/types"
)

// SessionValidator resolves a raw session credential to an identity id.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (string, error)
}

// TypingTracker is the typing state machine driven by client control frames.
type TypingTracker interface {
	Signal(conversationID, did, name string)
	Stop(conversationID, did string)
}

// Server ties the hub, the typing tracker, and the auth gate to one fasthttp
// listener: Fiber serves the HTTP routes (ingress, info, health) and the
// /ws path is handled by a raw upgrade handler beside the Fiber app, since
// Fiber v3 does not expose *fasthttp.RequestCtx.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	typing   TypingTracker
	sessions SessionValidator
	app      *fiber.App
	upgrader websocket.FastHTTPUpgrader
	httpSrv  *fasthttp.Server
	logger   zerolog.Logger
}

// New assembles a realtime server. Frame handlers and routes are registered
// here; the hub's event loop starts in Run.
func New(cfg *config.Config, h *hub.Hub, tracker TypingTracker, sessions SessionValidator, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		hub:      h,
		typing:   tracker,
		sessions: sessions,
		app:      fiber.New(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
		logger: logger.With().Str("component", "server").Logger(),
	}
	s.registerFrameHandlers()
	s.registerRoutes()
	return s
}

// Handler returns the root fasthttp handler.
func (s *Server) Handler() fasthttp.RequestHandler {
	appHandler := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			s.handleUpgrade(ctx)
			return
		}
		appHandler(ctx)
	}
}

// Run starts the hub loop and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run()
	defer s.hub.Stop()

	s.httpSrv = &fasthttp.Server{
		Handler: s.Handler(),
		Name:    "realtime",
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe(s.cfg.Addr)
	}()
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("realtime server listening")

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down")
		return s.httpSrv.Shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerFrameHandlers() {
	s.hub.RegisterHandler(types.FramePing, s.handlePing)
	s.hub.RegisterHandler(types.FrameSubscribe, s.handleSubscribe)
	s.hub.RegisterHandler(types.FrameTyping, s.handleTyping)
	s.hub.RegisterHandler(types.FrameStopTyping, s.handleStopTyping)
}

func (s *Server) handlePing(c *hub.Client, _ types.ClientFrame) {
	c.TrySend(types.ServerFrame{Type: types.FramePong})
}

func (s *Server) handleSubscribe(c *hub.Client, frame types.ClientFrame) {
	if frame.ConversationID == "" {
		c.TrySend(types.ErrorFrame("subscribe requires conversationId"))
		return
	}
	s.hub.Subscribe(c, frame.ConversationID)
}

func (s *Server) handleTyping(c *hub.Client, frame types.ClientFrame) {
	if frame.ConversationID == "" {
		c.TrySend(types.ErrorFrame("typing requires conversationId"))
		return
	}
	s.typing.Signal(frame.ConversationID, c.DID, frame.Name)
}

func (s *Server) handleStopTyping(c *hub.Client, frame types.ClientFrame) {
	if frame.ConversationID == "" {
		c.TrySend(types.ErrorFrame("stop_typing requires conversationId"))
		return
	}
	s.typing.Stop(frame.ConversationID, c.DID)
}
