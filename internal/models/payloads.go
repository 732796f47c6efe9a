package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// PeerID is a user identity reference on the wire. The broker emits both
// numeric and string ids depending on the producing endpoint, so it accepts
// either shape and normalizes to a string.
type PeerID string

func (p *PeerID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PeerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("peer id is neither string nor number: %w", err)
	}
	*p = PeerID(n.String())
	return nil
}

func (p PeerID) String() string { return string(p) }

// IsZero reports whether the id is unset or the neutral zero value.
func (p PeerID) IsZero() bool {
	if p == "" {
		return true
	}
	if n, err := strconv.ParseInt(string(p), 10, 64); err == nil && n == 0 {
		return true
	}
	return false
}

// ChatMessagePayload is the wire shape on /topic/messages and the body
// published to /app/chat.sendMessage.
type ChatMessagePayload struct {
	ID         string `json:"id"`
	SenderID   PeerID `json:"senderId"`
	ReceiverID PeerID `json:"receiverId"`
	Content    string `json:"content"`
	CreatedAt  string `json:"createdAt"`
}

// DeliveryReceiptPayload is the wire shape on /topic/messages.delivered and
// the body published to /app/chat.confirmDelivery.
type DeliveryReceiptPayload struct {
	MessageID  string `json:"messageId"`
	ReceiverID PeerID `json:"receiverId,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// ReadReceiptPayload is the wire shape on /topic/messages.read.
type ReadReceiptPayload struct {
	ID        string `json:"id,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Read      bool   `json:"read"`
}

// Key returns the referenced message id regardless of which field the
// producer populated.
func (p ReadReceiptPayload) Key() string {
	if p.MessageID != "" {
		return p.MessageID
	}
	return p.ID
}

// ReadStatusPayload is the body published to /app/chat.markRead.
type ReadStatusPayload struct {
	MessageID  string `json:"messageId,omitempty"`
	SenderID   PeerID `json:"senderId"`
	ReceiverID PeerID `json:"receiverId"`
	Read       bool   `json:"read"`
	Timestamp  string `json:"timestamp"`
}

// TypingPayload is the wire shape on /topic/messages.typing and the body
// published to /app/chat.typing.
type TypingPayload struct {
	UserID     PeerID `json:"userId"`
	ReceiverID PeerID `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// MessageUpdatePayload is the wire shape on /topic/messages.update.
type MessageUpdatePayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// ParseChatMessage validates and decodes an inbound chat message body.
func ParseChatMessage(body []byte) (*ChatMessagePayload, error) {
	var p ChatMessagePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("malformed chat message: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("chat message missing id")
	}
	if p.SenderID == "" {
		return nil, fmt.Errorf("chat message %s missing senderId", p.ID)
	}
	return &p, nil
}

// ParseDeliveryReceipt validates and decodes an inbound delivery receipt body.
func ParseDeliveryReceipt(body []byte) (*DeliveryReceiptPayload, error) {
	var p DeliveryReceiptPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("malformed delivery receipt: %w", err)
	}
	if p.MessageID == "" {
		return nil, fmt.Errorf("delivery receipt missing messageId")
	}
	return &p, nil
}

// ParseReadReceipt validates and decodes an inbound read receipt body.
func ParseReadReceipt(body []byte) (*ReadReceiptPayload, error) {
	var p ReadReceiptPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("malformed read receipt: %w", err)
	}
	if p.Key() == "" {
		return nil, fmt.Errorf("read receipt missing message id")
	}
	return &p, nil
}

// ParseTyping validates and decodes an inbound typing indicator body.
func ParseTyping(body []byte) (*TypingPayload, error) {
	var p TypingPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("malformed typing indicator: %w", err)
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("typing indicator missing userId")
	}
	return &p, nil
}

// ParseMessageUpdate validates and decodes an inbound edit notification body.
func ParseMessageUpdate(body []byte) (*MessageUpdatePayload, error) {
	var p MessageUpdatePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("malformed update notification: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("update notification missing id")
	}
	return &p, nil
}
