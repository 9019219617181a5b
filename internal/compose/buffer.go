// File: internal/compose/buffer.go
package compose

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/carelinkhq/carelink/internal/domain"
	"github.com/carelinkhq/carelink/internal/logging"
)

// State tracks where a new-conversation compose flow is.
type State string

const (
	StateIdle      State = "idle"
	StateDrafting  State = "drafting"
	StateLookup    State = "lookup-in-flight"
	StateConfirmed State = "confirmed"
	StateNavigated State = "navigate-to-existing"
)

var ErrNoDraft = errors.New("compose: no pending draft")

// LookupFunc finds an existing thread with the identical sorted participant
// set and scope. found=false with a nil error means a clean miss.
type LookupFunc func(ctx context.Context, sortedParticipantIDs []string, threadType domain.ThreadType, clientID string) (domain.Thread, bool, error)

// CreateFunc persists the draft server-side and returns the authoritative
// thread.
type CreateFunc func(ctx context.Context, draft domain.PendingThread) (domain.Thread, error)

// Buffer holds at most one client-synthesized thread until the first real
// round-trip confirms or replaces it. Creating a second draft while one is
// outstanding silently replaces the first (last writer wins); there is only
// one compose flow at a time.
type Buffer struct {
	mu     sync.Mutex
	draft  *domain.PendingThread
	state  State
	logger logging.Logger
}

func NewBuffer(logger logging.Logger) *Buffer {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Buffer{state: StateIdle, logger: logger}
}

// Create synthesizes a pending thread for the given participants. The
// creator is always included in the participant set.
func (b *Buffer) Create(creatorID string, participantIDs []string, threadType domain.ThreadType, clientID, displayName string, participants []domain.Participant) domain.PendingThread {
	ids := append([]string(nil), participantIDs...)
	hasCreator := false
	for _, id := range ids {
		if id == creatorID {
			hasCreator = true
			break
		}
	}
	if !hasCreator {
		ids = append(ids, creatorID)
	}

	draft := domain.PendingThread{
		ID:             "pending-" + uuid.NewString(),
		Type:           threadType,
		ClientID:       clientID,
		DisplayName:    displayName,
		ParticipantIDs: ids,
		Participants:   participants,
		CreatedBy:      creatorID,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.draft != nil {
		b.logger.Warn("compose: replacing uncommitted draft", "old_id", b.draft.ID, "new_id", draft.ID)
	}
	b.draft = &draft
	b.state = StateDrafting
	return draft
}

// Draft returns the current pending thread, if any.
func (b *Buffer) Draft() (domain.PendingThread, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.draft == nil {
		return domain.PendingThread{}, false
	}
	return *b.draft, true
}

// State returns the compose flow state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ResolveOnSend runs the lookup-then-create path for the buffered draft.
// An existing thread with the identical participant set and scope wins over
// creating a duplicate; a lookup failure is logged and treated as a miss so
// the send is never blocked. A failed create leaves the draft in place,
// resubmittable. On success the buffer is cleared.
func (b *Buffer) ResolveOnSend(ctx context.Context, lookup LookupFunc, create CreateFunc) (domain.Thread, bool, error) {
	b.mu.Lock()
	if b.draft == nil {
		b.mu.Unlock()
		return domain.Thread{}, false, ErrNoDraft
	}
	draft := *b.draft
	b.state = StateLookup
	b.mu.Unlock()

	sorted := append([]string(nil), draft.ParticipantIDs...)
	sort.Strings(sorted)

	existing, found, err := lookup(ctx, sorted, draft.Type, draft.ClientID)
	if err != nil {
		// Proceed optimistically rather than blocking the user.
		b.logger.Error("compose: existing-thread lookup failed", "error", err)
		found = false
	}
	if found {
		b.mu.Lock()
		b.draft = nil
		b.state = StateNavigated
		b.mu.Unlock()
		return existing, true, nil
	}

	created, err := create(ctx, draft)
	if err != nil {
		b.mu.Lock()
		b.state = StateDrafting
		b.mu.Unlock()
		return domain.Thread{}, false, err
	}

	b.Confirm(created)
	return created, false, nil
}

// Confirm replaces the pending draft with the authoritative thread and
// clears the buffer.
func (b *Buffer) Confirm(serverThread domain.Thread) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.draft != nil {
		b.logger.Debug("compose: draft confirmed", "draft_id", b.draft.ID, "thread_id", serverThread.ID)
	}
	b.draft = nil
	b.state = StateConfirmed
}

// Discard drops the draft without resolution (user abandoned the compose).
func (b *Buffer) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.draft = nil
	b.state = StateIdle
}
