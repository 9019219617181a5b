// File: internal/store/message_store.go
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/carelinkhq/carelink/internal/domain"
)

// DefaultMergeWindow bounds the optimistic-send/server-echo collapse
// heuristic: an inbound message with an unknown id is merged into an
// optimistic entry when sender and body match and the creation timestamps
// are no further apart than this.
const DefaultMergeWindow = 10 * time.Second

// MessageStore holds the ordered message sequence for one open thread.
// Messages are kept in ascending created-at order regardless of arrival
// order; under reconnect or replay the live channel delivers out of order.
type MessageStore struct {
	mu          sync.RWMutex
	threadID    string
	messages    []*domain.Message
	byID        map[string]*domain.Message
	mergeWindow time.Duration

	// ids of optimistic sends not yet confirmed by a server echo
	pending map[string]bool
}

func NewMessageStore(threadID string, mergeWindow time.Duration) *MessageStore {
	if mergeWindow <= 0 {
		mergeWindow = DefaultMergeWindow
	}
	return &MessageStore{
		threadID:    threadID,
		byID:        make(map[string]*domain.Message),
		mergeWindow: mergeWindow,
		pending:     make(map[string]bool),
	}
}

// ThreadID returns the thread this store belongs to.
func (s *MessageStore) ThreadID() string {
	return s.threadID
}

// AppendOptimistic records a locally sent message awaiting its server echo.
func (s *MessageStore) AppendOptimistic(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[m.ID] = true
	s.insertLocked(m)
}

// Append adds a message in created-at order. A message whose id is already
// present replaces the existing record in place. A message with an unknown id
// that matches a pending optimistic send (same sender, same body, created
// within the merge window) collapses into it; the server record wins.
func (s *MessageStore) Append(m domain.Message) {
	if m.ID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[m.ID]; ok {
		s.replaceLocked(existing, m)
		return
	}

	if echo := s.matchPendingLocked(&m); echo != nil {
		delete(s.pending, echo.ID)
		delete(s.byID, echo.ID)
		s.replaceLocked(echo, m)
		s.byID[m.ID] = echo
		return
	}

	s.insertLocked(m)
}

// matchPendingLocked finds the optimistic entry a server echo corresponds to,
// if any.
func (s *MessageStore) matchPendingLocked(m *domain.Message) *domain.Message {
	for id := range s.pending {
		p := s.byID[id]
		if p == nil {
			delete(s.pending, id)
			continue
		}
		if p.SenderID != m.SenderID || p.Body != m.Body {
			continue
		}
		delta := m.CreatedAt.Sub(p.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= s.mergeWindow {
			return p
		}
	}
	return nil
}

func (s *MessageStore) replaceLocked(dst *domain.Message, src domain.Message) {
	// Keep read-by entries already recorded locally; the set only grows.
	readBy := dst.ReadBy
	*dst = src
	for _, rb := range readBy {
		if !dst.IsReadBy(rb.UserID) {
			dst.ReadBy = append(dst.ReadBy, rb)
		}
	}
	s.sortLocked()
}

func (s *MessageStore) insertLocked(m domain.Message) {
	cp := m
	s.byID[cp.ID] = &cp
	s.messages = append(s.messages, &cp)
	s.sortLocked()
}

func (s *MessageStore) sortLocked() {
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})
}

// PatchReadBy adds a read-by entry for the user if not already present.
// Applying the same patch twice is a no-op.
func (s *MessageStore) PatchReadBy(messageID, userID string, readAt time.Time) {
	if messageID == "" || userID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok || m.IsReadBy(userID) {
		return
	}
	m.ReadBy = append(m.ReadBy, domain.ReadBy{UserID: userID, ReadAt: readAt})
}

// Get returns a copy of the message with the given id.
func (s *MessageStore) Get(messageID string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[messageID]
	if !ok {
		return domain.Message{}, false
	}
	return *m, true
}

// List returns copies of all messages in ascending created-at order.
func (s *MessageStore) List() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}

// Len returns the number of messages held.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
