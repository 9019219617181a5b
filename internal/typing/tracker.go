// File: internal/typing/tracker.go
package typing

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carelinkhq/carelink/internal/domain"
)

// DefaultTimeout is how long a typing entry stays live without a refresh.
// The inbound channel may drop the final "stopped typing" signal, so expiry
// is evaluated on read rather than trusting explicit stops.
const DefaultTimeout = 5 * time.Second

type entry struct {
	displayName string
	refreshedAt time.Time
}

// Tracker holds ephemeral per-thread, per-user typing flags.
type Tracker struct {
	mu      sync.RWMutex
	timeout time.Duration
	entries map[string]map[string]entry // threadID -> userID -> entry
	now     func() time.Time
}

func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		timeout: timeout,
		entries: make(map[string]map[string]entry),
		now:     time.Now,
	}
}

// SetNow overrides the clock (for tests).
func (t *Tracker) SetNow(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Apply records, refreshes, or removes an entry based on the signal.
func (t *Tracker) Apply(sig domain.TypingSignal) {
	if sig.ThreadID == "" || sig.UserID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !sig.IsTyping {
		t.removeLocked(sig.ThreadID, sig.UserID)
		return
	}

	m, ok := t.entries[sig.ThreadID]
	if !ok {
		m = make(map[string]entry)
		t.entries[sig.ThreadID] = m
	}
	m[sig.UserID] = entry{displayName: sig.DisplayName, refreshedAt: t.now()}
}

// ClearUser removes a user's entry for a thread. A message from a typing user
// supersedes their typing signal.
func (t *Tracker) ClearUser(threadID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(threadID, userID)
}

func (t *Tracker) removeLocked(threadID, userID string) {
	if m, ok := t.entries[threadID]; ok {
		delete(m, userID)
		if len(m) == 0 {
			delete(t.entries, threadID)
		}
	}
}

// ActiveNames returns the display names of users currently typing in a
// thread, excluding the current user and any entry older than the timeout.
func (t *Tracker) ActiveNames(threadID, currentUserID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, ok := t.entries[threadID]
	if !ok {
		return nil
	}

	cutoff := t.now().Add(-t.timeout)
	var names []string
	for userID, e := range m {
		if userID == currentUserID || e.refreshedAt.Before(cutoff) {
			continue
		}
		name := e.displayName
		if name == "" {
			name = userID
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Label renders the "who is typing" line for a thread, with singular/plural
// verb agreement. Empty when nobody relevant is typing.
func (t *Tracker) Label(threadID, currentUserID string) string {
	names := t.ActiveNames(threadID, currentUserID)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	default:
		return strings.Join(names, ", ") + " are typing..."
	}
}
