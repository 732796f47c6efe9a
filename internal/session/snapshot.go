package session

import (
	"time"

	"marketchat/internal/models"
)

// Snapshot is a point-in-time copy of the session's observable state, built
// for the HTTP surface and for tests. Slices and maps are copies; mutating
// them never touches the session.
type Snapshot struct {
	State           models.ConnectionState `json:"state"`
	StatusText      string                 `json:"statusText"`
	StatusClass     string                 `json:"statusClass"`
	Sender          string                 `json:"sender"`
	Receiver        string                 `json:"receiver"`
	IsTyping        bool                   `json:"isTyping"`
	PendingMessages []string               `json:"pendingMessages"`
	FailedMessages  []string               `json:"failedMessages"`
	PendingCount    int                    `json:"pendingCount"`
	FailedCount     int                    `json:"failedCount"`
	ReceivedCount   int                    `json:"receivedCount"`
	TypingPeers     []string               `json:"typingPeers"`
}

// State returns the current connection state.
func (s *Session) State() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the session holds an active broker connection.
func (s *Session) Connected() bool {
	return s.State() == models.StateConnected
}

// Receiver returns the active conversation partner.
func (s *Session) Receiver() models.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receiver
}

// Messages returns a copy of the conversation view in arrival order.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		out = append(out, *msg)
	}
	return out
}

// Logs returns a copy of the bounded session log.
func (s *Session) Logs() []models.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// PendingIDs returns the ids of messages queued for the next reconnect, in
// send order.
func (s *Session) PendingIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for _, msg := range s.pending {
		out = append(out, msg.ID)
	}
	return out
}

// FailedIDs returns the ids currently eligible for retry.
func (s *Session) FailedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.failed))
	for id := range s.failed {
		out = append(out, id)
	}
	return out
}

// IsDelivered reports whether a delivery receipt arrived for the message.
func (s *Session) IsDelivered(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.delivered[id]
	return ok
}

// IsRead reports whether a read receipt arrived for the message.
func (s *Session) IsRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.read[id]
	return ok
}

// TypingPeers returns the peers currently typing to us, pruning entries
// whose last typing signal is older than the expiry window.
func (s *Session) TypingPeers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingPeersLocked(s.now())
}

func (s *Session) typingPeersLocked(at time.Time) []string {
	out := make([]string, 0, len(s.typingPeers))
	for id, tp := range s.typingPeers {
		if at.Sub(tp.since) > s.cfg.TypingExpiry {
			tp.debounce.Stop()
			delete(s.typingPeers, id)
			continue
		}
		out = append(out, id)
	}
	return out
}

// Status builds the observable-state snapshot served over HTTP.
func (s *Session) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]string, 0, len(s.pending))
	for _, msg := range s.pending {
		pending = append(pending, msg.ID)
	}
	failed := make([]string, 0, len(s.failed))
	for id := range s.failed {
		failed = append(failed, id)
	}
	return Snapshot{
		State:           s.state,
		StatusText:      s.state.StatusText(),
		StatusClass:     s.state.StatusClass(),
		Sender:          s.sender,
		Receiver:        s.receiver.String(),
		IsTyping:        s.typing,
		PendingMessages: pending,
		FailedMessages:  failed,
		PendingCount:    len(s.pending),
		FailedCount:     len(s.failed),
		ReceivedCount:   s.receivedCount,
		TypingPeers:     s.typingPeersLocked(s.now()),
	}
}
