package types

import "encoding/json"

// Client control frame types.
const (
	FramePing       = "ping"
	FrameSubscribe  = "subscribe"
	FrameTyping     = "typing"
	FrameStopTyping = "stop_typing"
)

// Server frame types.
const (
	FrameConnected       = "connected"
	FramePong            = "pong"
	FrameError           = "error"
	FrameNewMessage      = "new_message"
	FrameMessageEdited   = "message_edited"
	FrameMessageDeleted  = "message_deleted"
	FrameReactionAdded   = "reaction_added"
	FrameReactionRemoved = "reaction_removed"
	FrameUserTyping      = "user_typing"
	FrameUserStopTyping  = "user_stop_typing"
	FrameUserPresence    = "user_presence"
)

// ClientFrame is a control frame received from a connected client.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Name           string `json:"name,omitempty"`
}

// ServerFrame is the envelope pushed to clients. Fields form a flat union
// across frame types; unused fields are omitted on the wire.
type ServerFrame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	DID            string          `json:"did,omitempty"`
	Name           string          `json:"name,omitempty"`
	Online         *bool           `json:"online,omitempty"`
	LastSeen       string          `json:"lastSeen,omitempty"`
	Message        json.RawMessage `json:"message,omitempty"`
	MessageID      string          `json:"messageId,omitempty"`
	Emoji          string          `json:"emoji,omitempty"`
	Reactions      json.RawMessage `json:"reactions,omitempty"`
}

// ErrorFrame builds an error acknowledgment for a client. The message field
// carries a JSON string here, not a message object.
func ErrorFrame(msg string) ServerFrame {
	encoded, _ := json.Marshal(msg)
	return ServerFrame{Type: FrameError, Message: encoded}
}

// Conn abstracts a WebSocket connection for testability. Reads return raw
// bytes so a malformed payload can be distinguished from a dead socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}
