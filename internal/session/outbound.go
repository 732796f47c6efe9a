package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketchat/internal/constants"
	apperrors "marketchat/internal/errors"
	"marketchat/internal/metrics"
	"marketchat/internal/models"
	"marketchat/internal/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// SendMessage sends content to the active receiver. The message is inserted
// into the conversation view with status "sending" before any network work
// happens; when offline it keeps that status and is queued for the next
// connect. The returned id is the client-generated provisional id.
func (s *Session) SendMessage(content string) (string, error) {
	s.mu.Lock()
	sender := s.sender
	receiver := s.receiver
	s.mu.Unlock()

	if sender == "" || receiver.IsZero() || content == "" {
		s.log("Fill all fields", models.LogError)
		return "", apperrors.New(apperrors.ErrCodeValidationFailed, "sender, receiver and content are required")
	}

	now := s.now()
	clientID := fmt.Sprintf("%s-%d-%s", constants.DefaultClientIDPrefix, now.UnixMilli(), uuid.NewString()[:8])

	msg := &models.Message{
		ID:         clientID,
		SenderID:   sender,
		ReceiverID: receiver.String(),
		Content:    content,
		CreatedAt:  now,
		Direction:  models.DirectionSent,
		Status:     models.StatusSending,
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.byID[clientID] = msg
	s.mu.Unlock()
	s.persist(func(ctx context.Context, store MessageStore) error {
		return store.SaveMessage(ctx, msg)
	})

	// Sending a message ends any typing indicator immediately.
	s.typingDebounce.Stop()
	s.mu.Lock()
	wasTyping := s.typing
	s.typing = false
	s.mu.Unlock()
	if wasTyping {
		s.sendTypingStatus(false)
	}

	_, span := tracing.StartSpan(context.Background(), "send_message",
		attribute.String("message.id", clientID),
		attribute.Bool("session.connected", s.Connected()),
	)
	defer span.End()

	if !s.Connected() {
		s.queueOffline(msg)
		s.log("Not connected. Message queued for later.", models.LogWarning)
		return clientID, nil
	}

	if err := s.publishMessage(msg); err != nil {
		tracing.RecordError(span, err)
		// The broker rejected the frame or the transport died mid-send.
		// Mark it failed and queue it so the next connect flushes it.
		s.mu.Lock()
		msg.Status = models.StatusFailed
		s.mu.Unlock()
		s.queueOffline(msg)
		s.log(fmt.Sprintf("Send failed, message queued: %v", err), models.LogError)
		return clientID, apperrors.Wrap(err, apperrors.ErrCodeBrokerSend, "failed to publish message")
	}

	s.log(fmt.Sprintf("Sent: From: %s To: %s Content: %s", msg.SenderID, msg.ReceiverID, msg.Content), models.LogMessageSent)
	metrics.IncrementCounter("messages_sent", nil, "Messages published to the broker")
	return clientID, nil
}

// RetryMessage re-attempts a previously failed send. Offline retries leave
// the message failed without re-queueing it; the message is already in the
// offline queue from the original send.
func (s *Session) RetryMessage(messageID string) error {
	s.mu.Lock()
	msg, ok := s.byID[messageID]
	if !ok {
		s.mu.Unlock()
		return apperrors.New(apperrors.ErrCodeNotFound, "unknown message").WithContext("messageId", messageID)
	}
	msg.Status = models.StatusSending
	s.mu.Unlock()

	if !s.Connected() {
		s.mu.Lock()
		msg.Status = models.StatusFailed
		s.mu.Unlock()
		s.log("Retry failed: not connected", models.LogWarning)
		return apperrors.New(apperrors.ErrCodeTransport, "not connected")
	}

	if err := s.publishMessage(msg); err != nil {
		s.mu.Lock()
		msg.Status = models.StatusFailed
		s.mu.Unlock()
		s.log(fmt.Sprintf("Retry failed: %v", err), models.LogError)
		return apperrors.Wrap(err, apperrors.ErrCodeBrokerSend, "failed to republish message")
	}

	s.mu.Lock()
	delete(s.failed, messageID)
	s.removePendingLocked(messageID)
	failedCount := len(s.failed)
	s.mu.Unlock()
	metrics.SetGauge("failed_messages", float64(failedCount), nil, "Messages awaiting retry")
	s.persist(func(ctx context.Context, store MessageStore) error {
		if err := store.UpdateMessageStatus(ctx, messageID, models.StatusSending); err != nil {
			return err
		}
		return store.DeletePendingMessage(ctx, messageID)
	})

	s.log(fmt.Sprintf("Retried message %s", messageID), models.LogMessageSent)
	metrics.IncrementCounter("messages_retried", nil, "Failed messages re-sent")
	return nil
}

// processPendingMessages flushes the offline queue in first-queued order.
// Runs after every successful connect.
func (s *Session) processPendingMessages() {
	if !s.Connected() {
		return
	}

	s.mu.Lock()
	toSend := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(toSend) == 0 {
		return
	}

	_, span := tracing.StartSpan(context.Background(), "flush_pending",
		attribute.Int("queue.size", len(toSend)),
	)
	defer span.End()

	sent := 0
	for i, msg := range toSend {
		if err := s.publishMessage(msg); err != nil {
			// Put the unsent tail back so the next connect flushes it.
			s.mu.Lock()
			s.pending = append(toSend[i:], s.pending...)
			s.mu.Unlock()
			s.log(fmt.Sprintf("Queue flush interrupted: %v", err), models.LogError)
			break
		}
		sent++
		s.mu.Lock()
		delete(s.failed, msg.ID)
		msg.Status = models.StatusSent
		s.mu.Unlock()
		s.persist(func(ctx context.Context, store MessageStore) error {
			if err := store.UpdateMessageStatus(ctx, msg.ID, models.StatusSent); err != nil {
				return err
			}
			return store.DeletePendingMessage(ctx, msg.ID)
		})
	}

	if sent > 0 {
		s.log(fmt.Sprintf("Sent %d queued messages", sent), models.LogInfo)
		metrics.AddToCounter("messages_flushed", float64(sent), nil, "Queued messages sent on reconnect")
	}
	s.mu.Lock()
	remaining := len(s.pending)
	failedCount := len(s.failed)
	s.mu.Unlock()
	metrics.SetGauge("pending_messages", float64(remaining), nil, "Messages queued while offline")
	metrics.SetGauge("failed_messages", float64(failedCount), nil, "Messages awaiting retry")
}

// HandleTyping records local typing activity. The first keystroke broadcasts
// a typing-start; the stop broadcast is debounced so a continuous burst of
// keystrokes produces exactly one start and one stop.
func (s *Session) HandleTyping() {
	s.mu.Lock()
	alreadyTyping := s.typing
	s.typing = true
	s.mu.Unlock()

	if !alreadyTyping {
		s.sendTypingStatus(true)
	}

	s.typingDebounce.Arm(s.cfg.TypingDebounce, func() {
		s.mu.Lock()
		s.typing = false
		s.mu.Unlock()
		s.sendTypingStatus(false)
	})
}

// MarkMessagesAsRead marks every message from the given peer as read locally
// and notifies the broker with a single bulk read status.
func (s *Session) MarkMessagesAsRead(senderID models.PeerID) {
	if !s.Connected() {
		return
	}

	s.mu.Lock()
	sender := s.sender
	for _, msg := range s.messages {
		if msg.SenderID == senderID.String() {
			s.read[msg.ID] = struct{}{}
		}
	}
	s.mu.Unlock()

	payload := models.ReadStatusPayload{
		SenderID:   senderID,
		ReceiverID: models.PeerID(sender),
		Read:       true,
		Timestamp:  s.now().Format(time.RFC3339),
	}
	if err := s.publishJSON(constants.DestMarkRead, payload); err != nil {
		s.log(fmt.Sprintf("Failed to send read status: %v", err), models.LogError)
		return
	}
	s.log(fmt.Sprintf("Marked messages from %s as read", senderID), models.LogInfo)
}

// MarkAllAsRead marks every unread message from the active receiver as read
// and publishes one read status per message id.
func (s *Session) MarkAllAsRead() {
	if !s.Connected() {
		return
	}

	s.mu.Lock()
	sender := s.sender
	receiver := s.receiver
	if receiver.IsZero() {
		s.mu.Unlock()
		return
	}
	var unread []string
	for _, msg := range s.messages {
		if msg.SenderID != receiver.String() {
			continue
		}
		if _, seen := s.read[msg.ID]; seen {
			continue
		}
		s.read[msg.ID] = struct{}{}
		unread = append(unread, msg.ID)
	}
	s.mu.Unlock()

	for _, id := range unread {
		payload := models.ReadStatusPayload{
			MessageID:  id,
			SenderID:   receiver,
			ReceiverID: models.PeerID(sender),
			Read:       true,
			Timestamp:  s.now().Format(time.RFC3339),
		}
		if err := s.publishJSON(constants.DestMarkRead, payload); err != nil {
			s.log(fmt.Sprintf("Failed to send read status: %v", err), models.LogError)
			return
		}
	}
	if len(unread) > 0 {
		s.log(fmt.Sprintf("Marked %d messages as read", len(unread)), models.LogInfo)
	}
}

// sendDeliveryConfirmation acknowledges receipt of an inbound message.
func (s *Session) sendDeliveryConfirmation(messageID string) {
	if !s.Connected() {
		return
	}
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()

	payload := models.DeliveryReceiptPayload{
		MessageID:  messageID,
		ReceiverID: models.PeerID(sender),
		Timestamp:  s.now().Format(time.RFC3339),
	}
	if err := s.publishJSON(constants.DestConfirmDelivery, payload); err != nil {
		s.log(fmt.Sprintf("Failed to confirm delivery of %s: %v", messageID, err), models.LogError)
		return
	}
	s.log(fmt.Sprintf("Sent delivery confirmation for message %s", messageID), models.LogInfo)
}

// sendTypingStatus broadcasts the local typing state. Silently skipped when
// offline or when no conversation is active.
func (s *Session) sendTypingStatus(isTyping bool) {
	s.mu.Lock()
	sender := s.sender
	receiver := s.receiver
	s.mu.Unlock()

	if !s.Connected() || sender == "" || receiver.IsZero() {
		return
	}

	payload := models.TypingPayload{
		UserID:     models.PeerID(sender),
		ReceiverID: receiver,
		IsTyping:   isTyping,
		Timestamp:  s.now().Format(time.RFC3339),
	}
	if err := s.publishJSON(constants.DestTyping, payload); err != nil {
		s.logger.WithError(err).Debug("Failed to send typing status")
	}
}

func (s *Session) publishMessage(msg *models.Message) error {
	payload := models.ChatMessagePayload{
		ID:         msg.ID,
		SenderID:   models.PeerID(msg.SenderID),
		ReceiverID: models.PeerID(msg.ReceiverID),
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt.Format(time.RFC3339),
	}
	return s.publishJSON(constants.DestSendMessage, payload)
}

func (s *Session) publishJSON(destination string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to encode payload")
	}
	return s.broker.Send(destination, "application/json", body)
}

func (s *Session) removePendingLocked(messageID string) {
	for i, msg := range s.pending {
		if msg.ID == messageID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// queueOffline appends the message to the pending queue and the failed set.
// It never touches the message status; the optimistic "sending" entry stays
// as-is until the flush or an explicit retry resolves it.
func (s *Session) queueOffline(msg *models.Message) {
	s.mu.Lock()
	s.pending = append(s.pending, msg)
	s.failed[msg.ID] = struct{}{}
	count := len(s.pending)
	failedCount := len(s.failed)
	s.mu.Unlock()

	s.persist(func(ctx context.Context, store MessageStore) error {
		return store.SavePendingMessage(ctx, msg)
	})
	metrics.SetGauge("pending_messages", float64(count), nil, "Messages queued while offline")
	metrics.SetGauge("failed_messages", float64(failedCount), nil, "Messages awaiting retry")
}
