package server

import (
	"context"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/commonloop/realtime/src/hub"
	"github.com/commonloop/realtime/src/types"
)

// handleUpgrade is the authentication gate in front of the WebSocket
// upgrade. The session credential is read from the handshake cookie and
// validated synchronously, exactly once, before any socket exists; a
// rejected client must re-handshake, which re-triggers validation.
func (s *Server) handleUpgrade(ctx *fasthttp.RequestCtx) {
	token := string(ctx.Request.Header.Cookie(s.cfg.SessionCookie))
	if token == "" {
		rejectUpgrade(ctx, "missing session")
		return
	}

	vctx, cancel := context.WithTimeout(context.Background(), s.cfg.AuthTimeout)
	did, err := s.sessions.ValidateSession(vctx, token)
	cancel()
	if err != nil {
		s.logger.Warn().Err(err).Msg("session validation rejected upgrade")
		rejectUpgrade(ctx, "invalid session")
		return
	}

	connID := uuid.New().String()
	err = s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		client := hub.NewClient(connID, did, conn, s.hub)
		s.hub.Register(client)
		go client.WritePump()
		client.TrySend(types.ServerFrame{Type: types.FrameConnected})
		client.ReadPump()
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
	}
}

func rejectUpgrade(ctx *fasthttp.RequestCtx, msg string) {
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"error":"unauthorized","message":"` + msg + `"}`)
}
