package server

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/commonloop/realtime/src/types"
)

func (s *Server) registerRoutes() {
	s.app.Post("/__ws_broadcast", s.handleBroadcast)
	s.app.Get("/ws/info", s.handleInfo)
	s.app.Get("/healthz", s.handleHealth)
}

// broadcastRequest is the envelope the stateless API tier posts after
// committing a write. Type defaults to new_message when a message payload
// is present.
type broadcastRequest struct {
	ConversationID string          `json:"conversationId"`
	Type           string          `json:"type"`
	Message        json.RawMessage `json:"message"`
	MessageID      string          `json:"messageId"`
	Emoji          string          `json:"emoji"`
	DID            string          `json:"did"`
	Reactions      json.RawMessage `json:"reactions"`
}

// handleBroadcast is the broadcast ingress: trusted write-path services
// inject fanout events here since they hold no connection state themselves.
// The dispatch carries no excluded identity — the originating writer is not
// a live connection in this process. Zero subscribers is a success: no one
// listening is not an error condition.
func (s *Server) handleBroadcast(c fiber.Ctx) error {
	var req broadcastRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "invalid body"})
	}

	frame, err := buildBroadcastFrame(&req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}

	s.hub.Dispatch(req.ConversationID, frame, "")
	return c.JSON(fiber.Map{"ok": true})
}

// buildBroadcastFrame validates an ingress envelope and shapes the outgoing
// frame for its event kind.
func buildBroadcastFrame(req *broadcastRequest) (types.ServerFrame, error) {
	if req.ConversationID == "" {
		return types.ServerFrame{}, errors.New("conversationId is required")
	}

	kind := req.Type
	if kind == "" {
		if len(req.Message) == 0 {
			return types.ServerFrame{}, errors.New("type or message is required")
		}
		kind = types.FrameNewMessage
	}

	switch kind {
	case types.FrameNewMessage:
		if len(req.Message) == 0 {
			return types.ServerFrame{}, errors.New("message is required")
		}
		return types.ServerFrame{
			Type:    types.FrameNewMessage,
			Message: req.Message,
		}, nil

	case types.FrameMessageEdited, types.FrameMessageDeleted:
		if len(req.Message) == 0 {
			return types.ServerFrame{}, errors.New("message is required")
		}
		return types.ServerFrame{
			Type:           kind,
			ConversationID: req.ConversationID,
			Message:        req.Message,
		}, nil

	case types.FrameReactionAdded, types.FrameReactionRemoved:
		if req.MessageID == "" {
			return types.ServerFrame{}, errors.New("messageId is required")
		}
		return types.ServerFrame{
			Type:           kind,
			ConversationID: req.ConversationID,
			MessageID:      req.MessageID,
			Emoji:          req.Emoji,
			DID:            req.DID,
			Reactions:      req.Reactions,
		}, nil

	default:
		return types.ServerFrame{}, errors.New("unsupported event type: " + kind)
	}
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket":     true,
		"endpoint":      "/ws",
		"clients":       s.hub.ClientCount(),
		"conversations": len(s.hub.Conversations()),
	})
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}
