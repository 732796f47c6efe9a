package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketchat/internal/constants"
	"marketchat/internal/metrics"
	"marketchat/internal/models"
)

var errSubscriptionClosed = errors.New("subscription channel closed")

// logParseError records a malformed inbound frame. The raw body goes to the
// structured log for debugging; the subscription keeps running.
func (s *Session) logParseError(kind string, body []byte, err error) {
	s.log(fmt.Sprintf("Error parsing %s: %v", kind, err), models.LogError)
	s.logger.WithField("body", string(body)).WithError(err).Warn("Dropped malformed frame")
	metrics.IncrementCounter("parse_errors", map[string]string{"kind": kind}, "Malformed inbound frames dropped")
}

// subscribeTopics attaches the five chat topics after a successful connect.
// Each subscription gets its own reader goroutine; a malformed frame is
// logged and skipped, a transport error tears the connection down once.
func (s *Session) subscribeTopics(ctx context.Context, gen int) {
	topics := map[string]func([]byte){
		constants.TopicMessages:          s.handleChatMessage,
		constants.TopicMessagesRead:      s.handleReadReceipt,
		constants.TopicMessagesDelivered: s.handleDeliveryReceipt,
		constants.TopicMessagesTyping:    s.handleTypingIndicator,
		constants.TopicMessagesUpdate:    s.handleMessageUpdate,
	}

	for topic, handler := range topics {
		ch, err := s.broker.Subscribe(topic)
		if err != nil {
			s.log(fmt.Sprintf("Failed to subscribe to %s: %v", topic, err), models.LogError)
			s.connectionLost(ctx, gen, err)
			return
		}
		go s.readLoop(ctx, gen, ch, handler)
	}
}

func (s *Session) readLoop(ctx context.Context, gen int, ch <-chan Frame, handler func([]byte)) {
	for frame := range ch {
		if frame.Err != nil {
			s.connectionLost(ctx, gen, frame.Err)
			return
		}
		if s.currentGeneration() != gen {
			return
		}
		handler(frame.Body)
	}
	s.connectionLost(ctx, gen, errSubscriptionClosed)
}

// handleChatMessage processes an inbound chat message. Frames echoing our
// own sends are dropped; everything else is appended as a received message
// and acknowledged with a delivery confirmation.
func (s *Session) handleChatMessage(body []byte) {
	payload, err := models.ParseChatMessage(body)
	if err != nil {
		s.logParseError("message", body, err)
		return
	}

	s.mu.Lock()
	s.receivedCount++
	count := s.receivedCount
	if payload.SenderID.String() == s.sender {
		s.mu.Unlock()
		return
	}
	createdAt, parseErr := time.Parse(time.RFC3339, payload.CreatedAt)
	if parseErr != nil {
		createdAt = s.now()
	}
	msg := &models.Message{
		ID:         payload.ID,
		SenderID:   payload.SenderID.String(),
		ReceiverID: payload.ReceiverID.String(),
		Content:    payload.Content,
		CreatedAt:  createdAt,
		Direction:  models.DirectionReceived,
	}
	s.messages = append(s.messages, msg)
	s.byID[msg.ID] = msg
	s.mu.Unlock()

	s.persist(func(ctx context.Context, store MessageStore) error {
		return store.SaveMessage(ctx, msg)
	})

	s.log(fmt.Sprintf("Received message #%d: ID: %s From: %s To: %s Content: %s",
		count, payload.ID, payload.SenderID, payload.ReceiverID, payload.Content), models.LogMessageReceived)
	metrics.IncrementCounter("messages_received", nil, "Messages received from peers")

	s.sendDeliveryConfirmation(payload.ID)
}

func (s *Session) handleReadReceipt(body []byte) {
	payload, err := models.ParseReadReceipt(body)
	if err != nil {
		s.logParseError("read status", body, err)
		return
	}

	s.mu.Lock()
	s.read[payload.Key()] = struct{}{}
	s.mu.Unlock()

	s.log(fmt.Sprintf("Message read: ID: %s Read: %t", payload.Key(), payload.Read), models.LogMessageReceived)
}

// handleDeliveryReceipt records the receipt and settles the optimistic
// status of the referenced message: a delivery confirmation proves the
// broker accepted the send.
func (s *Session) handleDeliveryReceipt(body []byte) {
	payload, err := models.ParseDeliveryReceipt(body)
	if err != nil {
		s.logParseError("delivery status", body, err)
		return
	}

	s.mu.Lock()
	s.delivered[payload.MessageID] = struct{}{}
	msg, ok := s.byID[payload.MessageID]
	settle := ok && msg.Direction == models.DirectionSent && msg.Status == models.StatusSending
	if settle {
		msg.Status = models.StatusSent
	}
	s.mu.Unlock()

	if settle {
		s.persist(func(ctx context.Context, store MessageStore) error {
			return store.UpdateMessageStatus(ctx, payload.MessageID, models.StatusSent)
		})
	}

	s.log(fmt.Sprintf("Message delivered: %s", payload.MessageID), models.LogMessageReceived)
}

// handleTypingIndicator tracks the active receiver's typing state. Signals
// from other peers are ignored; each typing-start re-arms a per-peer expiry
// so a silent peer stops showing as typing.
func (s *Session) handleTypingIndicator(body []byte) {
	payload, err := models.ParseTyping(body)
	if err != nil {
		s.logParseError("typing status", body, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if payload.UserID != s.receiver {
		return
	}

	peerID := payload.UserID.String()
	if !payload.IsTyping {
		if tp, ok := s.typingPeers[peerID]; ok {
			tp.debounce.Stop()
			delete(s.typingPeers, peerID)
		}
		return
	}

	tp, ok := s.typingPeers[peerID]
	if !ok {
		tp = &typingPeer{debounce: &Debouncer{}}
		s.typingPeers[peerID] = tp
	}
	tp.since = s.now()
	tp.debounce.Arm(s.cfg.TypingExpiry, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.typingPeers[peerID]; ok && cur == tp {
			delete(s.typingPeers, peerID)
		}
	})
}

// handleMessageUpdate applies a server-side edit to the local view.
func (s *Session) handleMessageUpdate(body []byte) {
	payload, err := models.ParseMessageUpdate(body)
	if err != nil {
		s.logParseError("update", body, err)
		return
	}

	s.mu.Lock()
	if msg, ok := s.byID[payload.ID]; ok {
		msg.Content = payload.Content
	}
	s.mu.Unlock()

	s.log(fmt.Sprintf("Message updated: ID: %s Content: %s", payload.ID, payload.Content), models.LogMessageReceived)
}
