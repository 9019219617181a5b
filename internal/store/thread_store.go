// File: internal/store/thread_store.go
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/carelinkhq/carelink/internal/domain"
)

// ThreadStore is the in-memory ordered collection of conversation threads for
// the current session, most recent last message first. Threads arrive
// asynchronously (REST page loads and live events race), so an update for an
// unseen id is treated as an insert rather than an error.
type ThreadStore struct {
	mu           sync.RWMutex
	threads      []*domain.Thread
	byID         map[string]*domain.Thread
	openThreadID string
}

func NewThreadStore() *ThreadStore {
	return &ThreadStore{byID: make(map[string]*domain.Thread)}
}

// AddOrUpdate inserts the thread if its id is unseen, otherwise merges fields
// into the existing record. A partial update never overwrites a populated
// field with an empty one. The list is resorted by recency afterwards.
func (s *ThreadStore) AddOrUpdate(t domain.Thread) {
	if t.ID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[t.ID]
	if !ok {
		cp := t
		s.byID[t.ID] = &cp
		s.threads = append(s.threads, &cp)
		s.resortLocked()
		return
	}

	mergeThread(existing, &t)
	s.resortLocked()
}

func mergeThread(dst, src *domain.Thread) {
	if src.Type != "" {
		dst.Type = src.Type
	}
	if src.ClientID != "" {
		dst.ClientID = src.ClientID
	}
	if src.DisplayName != "" {
		dst.DisplayName = src.DisplayName
	}
	if len(src.ParticipantIDs) > 0 {
		dst.ParticipantIDs = src.ParticipantIDs
	}
	if len(src.Participants) > 0 {
		dst.Participants = src.Participants
	}
	if len(src.LeftParticipantIDs) > 0 {
		dst.LeftParticipantIDs = src.LeftParticipantIDs
	}
	if len(src.LeftParticipants) > 0 {
		dst.LeftParticipants = src.LeftParticipants
	}
	if src.CreatedBy != "" {
		dst.CreatedBy = src.CreatedBy
	}
	if src.LastMessagePreview != "" {
		dst.LastMessagePreview = src.LastMessagePreview
	}
	if !src.LastMessageTime.IsZero() {
		dst.LastMessageTime = src.LastMessageTime
	}
	if !src.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
	if src.UnreadCount > 0 {
		dst.UnreadCount = src.UnreadCount
	}
}

// ApplyIncomingMessage updates the matching thread's preview and recency and
// increments its unread count unless the thread is currently open. Unknown
// thread ids create a stub entry that later thread_update events flesh out.
func (s *ThreadStore) ApplyIncomingMessage(threadID, senderID, body string, at time.Time) {
	if threadID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[threadID]
	if !ok {
		t = &domain.Thread{ID: threadID}
		s.byID[threadID] = t
		s.threads = append(s.threads, t)
	}

	t.LastMessagePreview = body
	t.LastMessageTime = at
	if threadID != s.openThreadID {
		t.UnreadCount++
	}
	s.resortLocked()
}

// MarkOpen records the thread as the open thread and resets its unread count.
func (s *ThreadStore) MarkOpen(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.openThreadID = threadID
	if t, ok := s.byID[threadID]; ok {
		t.UnreadCount = 0
	}
}

// ClearOpen forgets the open thread (view unmounted).
func (s *ThreadStore) ClearOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openThreadID = ""
}

// OpenThreadID returns the currently open thread id, or "".
func (s *ThreadStore) OpenThreadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openThreadID
}

// Get returns a copy of the thread with the given id.
func (s *ThreadStore) Get(threadID string) (domain.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[threadID]
	if !ok {
		return domain.Thread{}, false
	}
	return *t, true
}

// Remove drops a thread from the store. Used when an optimistic thread is
// replaced by its server-confirmed counterpart.
func (s *ThreadStore) Remove(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[threadID]; !ok {
		return
	}
	delete(s.byID, threadID)
	for i, t := range s.threads {
		if t.ID == threadID {
			s.threads = append(s.threads[:i], s.threads[i+1:]...)
			break
		}
	}
}

// List returns copies of all threads, most recent last message first.
func (s *ThreadStore) List() []domain.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, *t)
	}
	return out
}

// FindByParticipants returns the thread whose current participant set equals
// the given sorted id set and whose type matches. Used for compose dedup.
func (s *ThreadStore) FindByParticipants(sortedIDs []string, threadType domain.ThreadType) (domain.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.threads {
		if t.Type != threadType || len(t.ParticipantIDs) != len(sortedIDs) {
			continue
		}
		ids := append([]string(nil), t.ParticipantIDs...)
		sort.Strings(ids)
		match := true
		for i := range ids {
			if ids[i] != sortedIDs[i] {
				match = false
				break
			}
		}
		if match {
			return *t, true
		}
	}
	return domain.Thread{}, false
}

// ResortByRecency re-sorts the list by last message time descending. The sort
// is stable: threads with equal timestamps keep their relative order.
func (s *ThreadStore) ResortByRecency() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resortLocked()
}

func (s *ThreadStore) resortLocked() {
	sort.SliceStable(s.threads, func(i, j int) bool {
		return s.threads[i].LastMessageTime.After(s.threads[j].LastMessageTime)
	})
}
