package models

import "time"

// MessageDirection tags a message as authored locally or by the peer.
type MessageDirection string

const (
	DirectionSent     MessageDirection = "sent"
	DirectionReceived MessageDirection = "received"
)

// MessageStatus tracks the outbound lifecycle of a locally authored message.
// It only ever moves forward: sending -> sent, or sending -> failed ->
// sending (retry) -> sent. Received messages carry no status.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// Message is a single unit of conversation state held by the session.
// ID is either a client-generated provisional id (client-<ms>-<rand>) or a
// server-assigned id for inbound messages; it is never reassigned.
type Message struct {
	ID         string           `json:"id"`
	SenderID   string           `json:"senderId"`
	ReceiverID string           `json:"receiverId"`
	Content    string           `json:"content"`
	CreatedAt  time.Time        `json:"createdAt"`
	Direction  MessageDirection `json:"type"`
	Status     MessageStatus    `json:"status,omitempty"`
}

// LogEntry is a UI-visible session log line.
type LogEntry struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Log entry types mirrored into the UI log panel.
const (
	LogInfo            = "info"
	LogWarning         = "warning"
	LogError           = "error"
	LogMessageSent     = "message-sent"
	LogMessageReceived = "message-received"
)

// ConnectionState is the session's connection state machine.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// StatusText returns the human-readable status string shown to users.
func (s ConnectionState) StatusText() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateConnecting:
		return "Connecting..."
	default:
		return "Disconnected"
	}
}

// StatusClass returns the presentation token derived from the state.
func (s ConnectionState) StatusClass() string {
	return string(s)
}
