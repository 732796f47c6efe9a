package session

import (
	"context"

	"marketchat/internal/models"
)

// Frame is a single inbound unit from a broker subscription. A non-nil Err
// signals that the underlying connection failed; the subscription channel is
// closed afterwards.
type Frame struct {
	Body []byte
	Err  error
}

// Broker is the destination-addressed publish/subscribe transport the
// session runs on. The production implementation speaks STOMP over a
// WebSocket; tests substitute an in-memory fake.
type Broker interface {
	Connect(ctx context.Context) error
	Subscribe(destination string) (<-chan Frame, error)
	Send(destination, contentType string, body []byte) error
	Disconnect() error
}

// MessageStore is the optional durable backing for conversation history and
// the offline queue. All calls are best-effort from the session's point of
// view; store failures never fail a send.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	UpdateMessageStatus(ctx context.Context, id string, status models.MessageStatus) error
	SavePendingMessage(ctx context.Context, msg *models.Message) error
	DeletePendingMessage(ctx context.Context, messageID string) error
	GetPendingMessages(ctx context.Context) ([]*models.Message, error)
}
