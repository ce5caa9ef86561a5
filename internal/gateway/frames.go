package gateway

import "github.com/tbuckley/go-chat-gateway/internal/types"

const (
	// inbound frame kinds
	FrameChatMessage = "chat_message"
	// outbound frame kinds
	FrameNewMessage = "new_message"

	defaultMessageType = "text"
)

// ClientFrame is a frame received over a client connection. Unrecognized
// Type values are ignored so newer clients can keep talking to older
// gateways.
type ClientFrame struct {
	Type        string `json:"type"`
	Content     string `json:"content,omitempty"`
	MessageType string `json:"message_type,omitempty"`
}

// ServerFrame is a frame delivered to client connections.
type ServerFrame struct {
	Type    string         `json:"type"`
	Message *types.Message `json:"message,omitempty"`
}

func NewMessageFrame(msg *types.Message) *ServerFrame {
	return &ServerFrame{
		Type:    FrameNewMessage,
		Message: msg,
	}
}
