// File: internal/session/session.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelinkhq/carelink/internal/api"
	"github.com/carelinkhq/carelink/internal/compose"
	"github.com/carelinkhq/carelink/internal/domain"
	"github.com/carelinkhq/carelink/internal/livechannel"
	"github.com/carelinkhq/carelink/internal/logging"
	"github.com/carelinkhq/carelink/internal/store"
	"github.com/carelinkhq/carelink/internal/typing"
)

var ErrNoOpenThread = errors.New("session: no open thread")

// RestAPI is the slice of the REST client the session needs. *api.Client
// satisfies it; tests substitute a fake.
type RestAPI interface {
	ListThreads(ctx context.Context) ([]domain.Thread, error)
	FindThreadByParticipants(ctx context.Context, sortedIDs []string, threadType domain.ThreadType, clientID string) (domain.Thread, bool, error)
	CreateThread(ctx context.Context, req api.CreateThreadRequest) (domain.Thread, error)
	ListMessages(ctx context.Context, threadID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, threadID string, req api.SendMessageRequest) (domain.Message, error)
	MarkThreadRead(ctx context.Context, threadID string) error
}

// Config tunes the reconciliation core.
type Config struct {
	MergeWindow   time.Duration
	TypingTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MergeWindow:   store.DefaultMergeWindow,
		TypingTimeout: typing.DefaultTimeout,
	}
}

// Session owns the per-signed-in-user messaging state: the thread list, the
// open thread's messages, typing flags, and the compose buffer. All inbound
// live-channel events flow through HandleEvent; the stores reconcile ordering
// and duplicates.
type Session struct {
	user    domain.User
	cfg     Config
	rest    RestAPI
	channel livechannel.Channel
	logger  logging.Logger

	Threads *store.ThreadStore
	Typing  *typing.Tracker
	Compose *compose.Buffer

	mu       sync.Mutex
	messages *store.MessageStore // open thread only; nil when no thread open

	// OnLoading, when set, is invoked around thread opens so a front-end can
	// show a placeholder. Silent fetches (optimistic-thread reconciliation)
	// skip it to avoid flashing a spinner over content already shown.
	OnLoading func(loading bool)
}

func New(user domain.User, cfg Config, rest RestAPI, channel livechannel.Channel, logger logging.Logger) *Session {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Session{
		user:    user,
		cfg:     cfg,
		rest:    rest,
		channel: channel,
		logger:  logger,
		Threads: store.NewThreadStore(),
		Typing:  typing.NewTracker(cfg.TypingTimeout),
		Compose: compose.NewBuffer(logger),
	}
}

// User returns the signed-in user.
func (s *Session) User() domain.User { return s.user }

// Start loads the thread list and begins consuming live events until ctx is
// done or the channel closes.
func (s *Session) Start(ctx context.Context) error {
	threads, err := s.rest.ListThreads(ctx)
	if err != nil {
		return err
	}
	for _, t := range threads {
		s.Threads.AddOrUpdate(t)
	}

	go s.consume(ctx)
	return nil
}

func (s *Session) consume(ctx context.Context) {
	if s.channel == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.channel.Events():
			if !ok {
				return
			}
			s.HandleEvent(ev)
		}
	}
}

// HandleEvent applies one inbound event to the stores. Malformed events are
// dropped with a diagnostic; they must never crash the store.
func (s *Session) HandleEvent(ev domain.Event) {
	switch ev.Type {
	case domain.EventNewMessage:
		var msg domain.Message
		if err := json.Unmarshal(ev.Payload, &msg); err != nil || msg.ID == "" || msg.ThreadID == "" {
			s.logger.Warn("dropping malformed new_message event", "error", err)
			return
		}
		s.applyIncomingMessage(msg)

	case domain.EventReadReceipt:
		var rr domain.ReadReceiptEvent
		if err := json.Unmarshal(ev.Payload, &rr); err != nil || rr.MessageID == "" || rr.ReadBy.UserID == "" {
			s.logger.Warn("dropping malformed read_receipt event", "error", err)
			return
		}
		s.applyReadReceipt(rr)

	case domain.EventTypingSignal:
		var sig domain.TypingSignal
		if err := json.Unmarshal(ev.Payload, &sig); err != nil || sig.ThreadID == "" || sig.UserID == "" {
			s.logger.Warn("dropping malformed typing_signal event", "error", err)
			return
		}
		s.Typing.Apply(sig)

	case domain.EventThreadUpdate:
		var t domain.Thread
		if err := json.Unmarshal(ev.Payload, &t); err != nil || t.ID == "" {
			s.logger.Warn("dropping malformed thread_update event", "error", err)
			return
		}
		s.Threads.AddOrUpdate(t)

	default:
		s.logger.Debug("ignoring unknown event type", "type", string(ev.Type))
	}
}

func (s *Session) applyIncomingMessage(msg domain.Message) {
	// A message from a typing user supersedes their typing signal.
	s.Typing.ClearUser(msg.ThreadID, msg.SenderID)
	s.Threads.ApplyIncomingMessage(msg.ThreadID, msg.SenderID, msg.Body, msg.CreatedAt)

	s.mu.Lock()
	msgs := s.messages
	s.mu.Unlock()

	// Patches for a thread that is not open no-op harmlessly; the message
	// will be fetched when the thread opens.
	if msgs != nil && msgs.ThreadID() == msg.ThreadID {
		msgs.Append(msg)
	}
}

func (s *Session) applyReadReceipt(rr domain.ReadReceiptEvent) {
	s.mu.Lock()
	msgs := s.messages
	s.mu.Unlock()

	if msgs != nil && (rr.ThreadID == "" || msgs.ThreadID() == rr.ThreadID) {
		msgs.PatchReadBy(rr.MessageID, rr.ReadBy.UserID, rr.ReadBy.ReadAt)
	}
}

// OpenThread makes the thread the open thread: fetches its messages, resets
// the unread count, and reports the user as having read everything. Silent
// opens skip the loading hook (used when reconciling an optimistic thread so
// already-rendered content does not flash). A stale fetch completing after
// the user navigated elsewhere is discarded.
func (s *Session) OpenThread(ctx context.Context, threadID string, silent bool) ([]domain.Message, error) {
	if !silent && s.OnLoading != nil {
		s.OnLoading(true)
		defer s.OnLoading(false)
	}

	msgs := store.NewMessageStore(threadID, s.cfg.MergeWindow)
	s.mu.Lock()
	s.messages = msgs
	s.mu.Unlock()
	s.Threads.MarkOpen(threadID)

	fetched, err := s.rest.ListMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	stale := s.messages != msgs
	s.mu.Unlock()
	if stale {
		// User navigated away mid-fetch; drop the late result silently.
		return nil, nil
	}

	for _, m := range fetched {
		msgs.Append(m)
	}

	if err := s.rest.MarkThreadRead(ctx, threadID); err != nil {
		// Read receipts are best effort; the thread still opens.
		s.logger.Warn("mark-read failed", "thread_id", threadID, "error", err)
	}

	return msgs.List(), nil
}

// CloseThread stops applying inbound patches to the previously open thread.
func (s *Session) CloseThread() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
	s.Threads.ClearOpen()
}

// Messages returns the open thread's messages in display order.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	msgs := s.messages
	s.mu.Unlock()
	if msgs == nil {
		return nil
	}
	return msgs.List()
}

// SendMessage appends an optimistic message to the open thread and pushes it
// over the live channel. The store collapses the server echo into the
// optimistic entry when it arrives.
func (s *Session) SendMessage(body string) (domain.Message, error) {
	s.mu.Lock()
	msgs := s.messages
	s.mu.Unlock()
	if msgs == nil {
		return domain.Message{}, ErrNoOpenThread
	}

	msg := domain.Message{
		ID:        "tmp-" + uuid.NewString(),
		ThreadID:  msgs.ThreadID(),
		SenderID:  s.user.ID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	msgs.AppendOptimistic(msg)
	s.Threads.ApplyIncomingMessage(msg.ThreadID, msg.SenderID, msg.Body, msg.CreatedAt)

	if s.channel != nil {
		if err := s.channel.SendMessage(msg); err != nil {
			return msg, err
		}
	}
	return msg, nil
}

// SetTyping publishes the user's typing state for the open thread.
func (s *Session) SetTyping(isTyping bool) error {
	s.mu.Lock()
	msgs := s.messages
	s.mu.Unlock()
	if msgs == nil {
		return ErrNoOpenThread
	}
	if s.channel == nil {
		return nil
	}
	return s.channel.SetTyping(msgs.ThreadID(), isTyping)
}

// TypingLabel renders the "who is typing" line for the open thread.
func (s *Session) TypingLabel() string {
	s.mu.Lock()
	msgs := s.messages
	s.mu.Unlock()
	if msgs == nil {
		return ""
	}
	return s.Typing.Label(msgs.ThreadID(), s.user.ID)
}

// StartConversation buffers a pending thread for a new compose flow and
// returns the draft for immediate rendering.
func (s *Session) StartConversation(participantIDs []string, threadType domain.ThreadType, clientID, displayName string, participants []domain.Participant) domain.PendingThread {
	return s.Compose.Create(s.user.ID, participantIDs, threadType, clientID, displayName, participants)
}

// CommitConversation resolves the buffered draft (dedup lookup, then create),
// opens the resulting thread, and sends the first message. The returned
// thread is either the pre-existing one (navigation) or the newly created one.
func (s *Session) CommitConversation(ctx context.Context, firstMessage string) (domain.Thread, error) {
	lookup := func(ctx context.Context, sortedIDs []string, threadType domain.ThreadType, clientID string) (domain.Thread, bool, error) {
		// Prefer a locally known thread before asking the server.
		if t, ok := s.Threads.FindByParticipants(sortedIDs, threadType); ok {
			return t, true, nil
		}
		return s.rest.FindThreadByParticipants(ctx, sortedIDs, threadType, clientID)
	}
	create := func(ctx context.Context, draft domain.PendingThread) (domain.Thread, error) {
		return s.rest.CreateThread(ctx, api.CreateThreadRequest{
			Type:           draft.Type,
			ClientID:       draft.ClientID,
			DisplayName:    draft.DisplayName,
			ParticipantIDs: draft.ParticipantIDs,
		})
	}

	thread, existed, err := s.Compose.ResolveOnSend(ctx, lookup, create)
	if err != nil {
		return domain.Thread{}, err
	}

	s.Threads.AddOrUpdate(thread)

	// Reconciling an optimistic thread: open silently to avoid flashing a
	// loading state over the compose view.
	if _, err := s.OpenThread(ctx, thread.ID, true); err != nil {
		s.logger.Warn("open after compose failed", "thread_id", thread.ID, "error", err)
	}

	if firstMessage != "" && !existed {
		// First message of a brand-new thread goes over REST so a live
		// channel outage cannot strand the freshly created thread empty.
		msg, err := s.rest.SendMessage(ctx, thread.ID, api.SendMessageRequest{Body: firstMessage})
		if err != nil {
			return thread, err
		}
		s.applyIncomingMessage(msg)
	} else if firstMessage != "" {
		if _, err := s.SendMessage(firstMessage); err != nil {
			return thread, err
		}
	}

	return thread, nil
}
