// Package session implements the messaging session manager: one long-lived
// logical connection to the chat broker, the conversation state derived from
// it, and the outbound pipeline with offline queueing and retry.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketchat/internal/constants"
	"marketchat/internal/identity"
	"marketchat/internal/metrics"
	"marketchat/internal/models"
	"marketchat/internal/retry"

	"github.com/sirupsen/logrus"
)

// Config tunes the session manager.
type Config struct {
	TypingDebounce time.Duration
	TypingExpiry   time.Duration
	Reconnect      retry.BackoffConfig
	AutoReconnect  bool
	LogBufferSize  int
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		TypingDebounce: time.Duration(constants.DefaultTypingDebounceMs) * time.Millisecond,
		TypingExpiry:   time.Duration(constants.DefaultTypingExpiryMs) * time.Millisecond,
		Reconnect: retry.BackoffConfig{
			InitialDelay: time.Duration(constants.DefaultReconnectInitialMs) * time.Millisecond,
			MaxDelay:     time.Duration(constants.DefaultReconnectMaxSec) * time.Second,
			Multiplier:   constants.DefaultReconnectMultiplier,
			MaxAttempts:  constants.DefaultConnectMaxAttempts,
			Jitter:       true,
		},
		AutoReconnect: true,
		LogBufferSize: constants.DefaultLogBufferSize,
	}
}

type typingPeer struct {
	since    time.Time
	debounce *Debouncer
}

// Session is the single long-lived messaging session. All state is guarded
// by mu; consumers observe it through snapshot accessors and mutate it only
// through the exported operations.
type Session struct {
	cfg      Config
	broker   Broker
	identity identity.Provider
	store    MessageStore
	logger   *logrus.Logger

	now func() time.Time

	mu            sync.Mutex
	state         models.ConnectionState
	generation    int
	sender        string
	receiver      models.PeerID
	messages      []*models.Message
	byID          map[string]*models.Message
	pending       []*models.Message
	failed        map[string]struct{}
	delivered     map[string]struct{}
	read          map[string]struct{}
	typingPeers   map[string]*typingPeer
	typing        bool
	receivedCount int
	logs          []models.LogEntry

	typingDebounce Debouncer
}

// New creates a session manager. store may be nil to run without durable
// history; ids must not be nil.
func New(cfg Config, broker Broker, ids identity.Provider, store MessageStore, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.LogBufferSize <= 0 {
		cfg.LogBufferSize = constants.DefaultLogBufferSize
	}
	return &Session{
		cfg:         cfg,
		broker:      broker,
		identity:    ids,
		store:       store,
		logger:      logger,
		now:         time.Now,
		state:       models.StateDisconnected,
		byID:        make(map[string]*models.Message),
		failed:      make(map[string]struct{}),
		delivered:   make(map[string]struct{}),
		read:        make(map[string]struct{}),
		typingPeers: make(map[string]*typingPeer),
	}
}

// Connect opens the broker connection asynchronously. It is a no-op while a
// connection attempt is in flight or the session is already connected, so
// repeated invocations never open a second transport.
func (s *Session) Connect(ctx context.Context) {
	s.mu.Lock()
	if s.state != models.StateDisconnected {
		state := s.state
		s.mu.Unlock()
		s.logger.WithField("state", state).Debug("Connect ignored, session not disconnected")
		return
	}
	s.updateSenderLocked()
	s.setStateLocked(models.StateConnecting)
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.log("Attempting to connect to broker...", models.LogInfo)
	go s.connectLoop(ctx, gen)
}

// Disconnect deactivates the transport. Safe to call when already
// disconnected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.setStateLocked(models.StateDisconnected)
	s.generation++
	s.mu.Unlock()

	if err := s.broker.Disconnect(); err != nil {
		s.logger.WithError(err).Debug("Broker disconnect returned an error")
	}
	s.log("Disconnected from broker", models.LogInfo)
}

// CheckConnection reports liveness: when connected it pings the broker,
// otherwise it records the degraded state in the session log.
func (s *Session) CheckConnection() {
	if !s.Connected() {
		s.log("Connection check: Not connected", models.LogError)
		return
	}
	if err := s.broker.Send(constants.DestPing, "text/plain", nil); err != nil {
		s.log(fmt.Sprintf("Connection check failed: %v", err), models.LogError)
		return
	}
	s.log("Connection check: Active", models.LogMessageReceived)
}

// PingServer sends an application-level ping when connected.
func (s *Session) PingServer() {
	if !s.Connected() {
		s.log("Not connected", models.LogError)
		return
	}
	if err := s.broker.Send(constants.DestPing, "text/plain", nil); err != nil {
		s.log(fmt.Sprintf("Ping failed: %v", err), models.LogError)
		return
	}
	s.log("Ping sent", models.LogMessageSent)
}

// SetReceiver selects the active conversation partner.
func (s *Session) SetReceiver(id models.PeerID) {
	s.mu.Lock()
	s.receiver = id
	s.mu.Unlock()
	s.logger.WithField("receiver", id.String()).Debug("Receiver updated")
}

// UpdateSender re-derives the sender from the identity provider.
func (s *Session) UpdateSender() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateSenderLocked()
}

// ClearMessages drops the local conversation view. The offline queue and
// receipt sets are untouched; switching conversations must not lose queued
// sends.
func (s *Session) ClearMessages() {
	s.mu.Lock()
	s.messages = nil
	s.byID = make(map[string]*models.Message)
	s.mu.Unlock()
	s.log("Cleared messages", models.LogInfo)
}

// RestorePending seeds the offline queue from durable storage at startup.
func (s *Session) RestorePending(msgs []*models.Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	for _, msg := range msgs {
		if _, exists := s.byID[msg.ID]; exists {
			continue
		}
		s.byID[msg.ID] = msg
		s.messages = append(s.messages, msg)
		s.pending = append(s.pending, msg)
		s.failed[msg.ID] = struct{}{}
	}
	count := len(s.pending)
	s.mu.Unlock()

	s.log(fmt.Sprintf("Restored %d queued messages", count), models.LogInfo)
	metrics.SetGauge("pending_messages", float64(count), nil, "Messages queued while offline")
}

func (s *Session) connectLoop(ctx context.Context, gen int) {
	backoff := retry.NewBackoff(s.cfg.Reconnect)
	attempt := 0
	err := backoff.Retry(ctx, func() error {
		if s.currentGeneration() != gen {
			return nil
		}
		attempt++
		connectErr := s.broker.Connect(ctx)
		if connectErr != nil {
			s.logger.WithError(connectErr).WithField("attempt", attempt).Warn("Broker connect attempt failed")
		}
		return connectErr
	})

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		// A Disconnect (or a newer Connect) superseded this attempt.
		if err == nil {
			_ = s.broker.Disconnect()
		}
		return
	}
	if err != nil {
		s.setStateLocked(models.StateDisconnected)
		s.mu.Unlock()
		s.log(fmt.Sprintf("Connection error: %v", err), models.LogError)
		metrics.IncrementCounter("connect_failures", nil, "Failed connection attempts")
		return
	}
	s.setStateLocked(models.StateConnected)
	s.mu.Unlock()

	s.log("Connected", models.LogMessageReceived)
	metrics.IncrementCounter("connects", nil, "Successful broker connections")

	s.subscribeTopics(ctx, gen)
	s.processPendingMessages()
}

// connectionLost downgrades the session when a subscription reader observes
// a transport failure. Stale generations (already disconnected or
// reconnected) are ignored.
func (s *Session) connectionLost(ctx context.Context, gen int, err error) {
	s.mu.Lock()
	if s.generation != gen || s.state != models.StateConnected {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(models.StateDisconnected)
	s.generation++
	s.mu.Unlock()

	s.log(fmt.Sprintf("Connection lost: %v", err), models.LogError)
	metrics.IncrementCounter("connection_losses", nil, "Broker connections dropped")

	if disconnectErr := s.broker.Disconnect(); disconnectErr != nil {
		s.logger.WithError(disconnectErr).Debug("Broker teardown after loss returned an error")
	}

	if s.cfg.AutoReconnect {
		s.Connect(ctx)
	}
}

func (s *Session) currentGeneration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) updateSenderLocked() {
	id, ok := s.identity.CurrentUserID()
	if !ok {
		s.logger.Warn("User identity not available")
		return
	}
	s.sender = id
}

func (s *Session) setStateLocked(state models.ConnectionState) {
	if s.state == state {
		return
	}
	s.state = state
	var value float64
	switch state {
	case models.StateConnecting:
		value = 1
	case models.StateConnected:
		value = 2
	}
	metrics.SetGauge("connection_state", value, nil, "0 disconnected, 1 connecting, 2 connected")
}

// log appends a UI-visible entry to the bounded session log and mirrors it
// to the structured logger.
func (s *Session) log(text string, entryType string) {
	entry := models.LogEntry{
		Text: fmt.Sprintf("[%s] %s", s.now().Format("15:04:05"), text),
		Type: entryType,
	}

	s.mu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > s.cfg.LogBufferSize {
		s.logs = s.logs[len(s.logs)-s.cfg.LogBufferSize:]
	}
	s.mu.Unlock()

	switch entryType {
	case models.LogError:
		s.logger.Error(text)
	case models.LogWarning:
		s.logger.Warn(text)
	default:
		s.logger.Debug(text)
	}
}

// persist runs a best-effort store operation with a bounded timeout. Store
// failures are logged and never surface to callers.
func (s *Session) persist(op func(ctx context.Context, store MessageStore) error) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultStoreTimeoutSec)*time.Second)
	defer cancel()
	if err := op(ctx, s.store); err != nil {
		s.logger.WithError(err).Warn("Message store operation failed")
	}
}
