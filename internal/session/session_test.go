package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/carelinkhq/carelink/internal/api"
	"github.com/carelinkhq/carelink/internal/domain"
	"github.com/carelinkhq/carelink/internal/logging"
)

// fakeAPI is an in-memory RestAPI with scriptable state.
type fakeAPI struct {
	threads       []domain.Thread
	messages      map[string][]domain.Message
	created       []api.CreateThreadRequest
	nextThreadID  string
	lookupErr     error
	markReadCalls []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{messages: map[string][]domain.Message{}, nextThreadID: "t42"}
}

func (f *fakeAPI) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	return f.threads, nil
}

func (f *fakeAPI) FindThreadByParticipants(ctx context.Context, sortedIDs []string, threadType domain.ThreadType, clientID string) (domain.Thread, bool, error) {
	if f.lookupErr != nil {
		return domain.Thread{}, false, f.lookupErr
	}
	for _, t := range f.threads {
		if len(t.ParticipantIDs) == len(sortedIDs) && t.Type == threadType {
			match := true
			for i, id := range sortedIDs {
				if t.ParticipantIDs[i] != id {
					match = false
					break
				}
			}
			if match {
				return t, true, nil
			}
		}
	}
	return domain.Thread{}, false, nil
}

func (f *fakeAPI) CreateThread(ctx context.Context, req api.CreateThreadRequest) (domain.Thread, error) {
	f.created = append(f.created, req)
	t := domain.Thread{
		ID:             f.nextThreadID,
		Type:           req.Type,
		ClientID:       req.ClientID,
		DisplayName:    req.DisplayName,
		ParticipantIDs: req.ParticipantIDs,
	}
	f.threads = append(f.threads, t)
	return t, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	return f.messages[threadID], nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, threadID string, req api.SendMessageRequest) (domain.Message, error) {
	msg := domain.Message{
		ID:        "srv-1",
		ThreadID:  threadID,
		SenderID:  "u1",
		Body:      req.Body,
		CreatedAt: time.Now().UTC(),
	}
	f.messages[threadID] = append(f.messages[threadID], msg)
	return msg, nil
}

func (f *fakeAPI) MarkThreadRead(ctx context.Context, threadID string) error {
	f.markReadCalls = append(f.markReadCalls, threadID)
	return nil
}

func newTestSession(f *fakeAPI) *Session {
	user := domain.User{ID: "u1", DisplayName: "User One", Role: domain.RoleCareGiver}
	return New(user, DefaultConfig(), f, nil, &logging.NoOpLogger{})
}

func rawEvent(t *testing.T, typ domain.EventType, payload any) domain.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return domain.Event{Type: typ, Payload: raw}
}

func TestSession_ComposeCreatesThreadOnce(t *testing.T) {
	// Scenario: u1 and u2 have no prior thread. Compose creates t42 once;
	// the pending draft never reaches the thread store.
	f := newFakeAPI()
	s := newTestSession(f)

	draft := s.StartConversation([]string{"u2"}, domain.ThreadTypeGeneral, "", "", nil)
	if draft.ID == "" {
		t.Fatal("no draft id")
	}

	thread, err := s.CommitConversation(context.Background(), "hello")
	if err != nil {
		t.Fatalf("CommitConversation() error = %v", err)
	}
	if thread.ID != "t42" {
		t.Errorf("thread.ID = %q, want t42", thread.ID)
	}
	if len(f.created) != 1 {
		t.Fatalf("CreateThread calls = %d, want 1", len(f.created))
	}

	list := s.Threads.List()
	if len(list) != 1 || list[0].ID != "t42" {
		t.Fatalf("thread store = %+v, want exactly t42", list)
	}
	if _, ok := s.Compose.Draft(); ok {
		t.Error("pending draft survived confirmation")
	}
}

func TestSession_SecondComposeNavigatesToExisting(t *testing.T) {
	f := newFakeAPI()
	s := newTestSession(f)

	s.StartConversation([]string{"u2"}, domain.ThreadTypeGeneral, "", "", nil)
	if _, err := s.CommitConversation(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}

	// Same participant set and scope again: no second thread.
	s.StartConversation([]string{"u2"}, domain.ThreadTypeGeneral, "", "", nil)
	thread, err := s.CommitConversation(context.Background(), "hi again")
	if err != nil {
		t.Fatalf("CommitConversation() error = %v", err)
	}
	if thread.ID != "t42" {
		t.Errorf("thread.ID = %q, want navigation to t42", thread.ID)
	}
	if len(f.created) != 1 {
		t.Errorf("CreateThread calls = %d, want 1 (dedup)", len(f.created))
	}
	if got := len(s.Threads.List()); got != 1 {
		t.Errorf("thread count = %d, want 1", got)
	}
}

func TestSession_ComposeBroadcastCarriesDisplayName(t *testing.T) {
	f := newFakeAPI()
	s := newTestSession(f)

	s.StartConversation(nil, domain.ThreadTypeBroadcast, "", "Team Announcements", nil)
	thread, err := s.CommitConversation(context.Background(), "welcome")
	if err != nil {
		t.Fatalf("CommitConversation() error = %v", err)
	}

	if len(f.created) != 1 || f.created[0].DisplayName != "Team Announcements" {
		t.Fatalf("created = %+v, want broadcast named Team Announcements", f.created)
	}
	if thread.DisplayName != "Team Announcements" {
		t.Errorf("thread.DisplayName = %q", thread.DisplayName)
	}
}

func TestSession_UnreadLifecycle(t *testing.T) {
	f := newFakeAPI()
	f.threads = []domain.Thread{{ID: "t1", ParticipantIDs: []string{"u1", "u2"}}}
	s := newTestSession(f)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	at := time.Now().UTC()
	inbound := func(id string, minute int) domain.Event {
		return rawEvent(t, domain.EventNewMessage, domain.Message{
			ID: id, ThreadID: "t1", SenderID: "u2", Body: "msg " + id,
			CreatedAt: at.Add(time.Duration(minute) * time.Minute),
		})
	}

	s.HandleEvent(inbound("m1", 0))
	s.HandleEvent(inbound("m2", 1))
	if got, _ := s.Threads.Get("t1"); got.UnreadCount != 2 {
		t.Fatalf("UnreadCount = %d, want 2", got.UnreadCount)
	}

	if _, err := s.OpenThread(context.Background(), "t1", false); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Threads.Get("t1"); got.UnreadCount != 0 {
		t.Fatalf("UnreadCount after open = %d, want 0", got.UnreadCount)
	}
	if len(f.markReadCalls) != 1 || f.markReadCalls[0] != "t1" {
		t.Errorf("markReadCalls = %v, want [t1]", f.markReadCalls)
	}

	// While open: no unread increment, but message lands in the open store.
	s.HandleEvent(inbound("m3", 2))
	if got, _ := s.Threads.Get("t1"); got.UnreadCount != 0 {
		t.Errorf("UnreadCount while open = %d, want 0", got.UnreadCount)
	}
	if got := len(s.Messages()); got != 1 {
		t.Errorf("open store has %d messages, want 1", got)
	}

	// After close: increments resume, patches no-op.
	s.CloseThread()
	s.HandleEvent(inbound("m4", 3))
	if got, _ := s.Threads.Get("t1"); got.UnreadCount != 1 {
		t.Errorf("UnreadCount after close = %d, want 1", got.UnreadCount)
	}
	if s.Messages() != nil {
		t.Error("messages available after close")
	}
}

func TestSession_OptimisticSendCollapsesWithEcho(t *testing.T) {
	f := newFakeAPI()
	f.threads = []domain.Thread{{ID: "t1", ParticipantIDs: []string{"u1", "u2"}}}
	s := newTestSession(f)
	if _, err := s.OpenThread(context.Background(), "t1", false); err != nil {
		t.Fatal(err)
	}

	sent, err := s.SendMessage("hello")
	if err != nil {
		t.Fatal(err)
	}

	// Server echo with the authoritative id a second later.
	s.HandleEvent(rawEvent(t, domain.EventNewMessage, domain.Message{
		ID: "m42", ThreadID: "t1", SenderID: "u1", Body: "hello",
		CreatedAt: sent.CreatedAt.Add(time.Second),
	}))

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("message count = %d, want 1 after echo collapse", len(msgs))
	}
	if msgs[0].ID != "m42" {
		t.Errorf("final id = %q, want server id m42", msgs[0].ID)
	}
}

func TestSession_ReadReceiptPatchesOpenThread(t *testing.T) {
	f := newFakeAPI()
	f.messages["t1"] = []domain.Message{{ID: "m1", ThreadID: "t1", SenderID: "u1", CreatedAt: time.Now().UTC()}}
	s := newTestSession(f)
	if _, err := s.OpenThread(context.Background(), "t1", false); err != nil {
		t.Fatal(err)
	}

	readAt := time.Now().UTC()
	receipt := rawEvent(t, domain.EventReadReceipt, domain.ReadReceiptEvent{
		ThreadID: "t1", MessageID: "m1",
		ReadBy: domain.ReadBy{UserID: "u2", ReadAt: readAt},
	})
	s.HandleEvent(receipt)
	s.HandleEvent(receipt) // duplicate delivery (at-least-once channel)

	msgs := s.Messages()
	if len(msgs[0].ReadBy) != 1 {
		t.Fatalf("ReadBy = %v, want one entry after duplicate receipts", msgs[0].ReadBy)
	}
}

func TestSession_TypingSignalsAndSupersession(t *testing.T) {
	f := newFakeAPI()
	s := newTestSession(f)
	if _, err := s.OpenThread(context.Background(), "t1", false); err != nil {
		t.Fatal(err)
	}

	s.HandleEvent(rawEvent(t, domain.EventTypingSignal, domain.TypingSignal{
		ThreadID: "t1", UserID: "u2", IsTyping: true, DisplayName: "Amira",
	}))
	if got := s.TypingLabel(); got != "Amira is typing..." {
		t.Fatalf("TypingLabel() = %q", got)
	}

	// Their message arrives: typing entry cleared.
	s.HandleEvent(rawEvent(t, domain.EventNewMessage, domain.Message{
		ID: "m1", ThreadID: "t1", SenderID: "u2", Body: "done typing", CreatedAt: time.Now().UTC(),
	}))
	if got := s.TypingLabel(); got != "" {
		t.Fatalf("TypingLabel() = %q, want empty after supersession", got)
	}
}

func TestSession_MalformedEventsDropped(t *testing.T) {
	f := newFakeAPI()
	s := newTestSession(f)

	events := []domain.Event{
		{Type: domain.EventNewMessage, Payload: json.RawMessage(`{`)},
		{Type: domain.EventNewMessage, Payload: json.RawMessage(`{"thread_id":"t1"}`)}, // missing id
		{Type: domain.EventReadReceipt, Payload: json.RawMessage(`{"message_id":""}`)},
		{Type: domain.EventTypingSignal, Payload: json.RawMessage(`{"user_id":"u2"}`)}, // missing thread
		{Type: domain.EventThreadUpdate, Payload: json.RawMessage(`{}`)},
		{Type: "unknown_type", Payload: json.RawMessage(`{}`)},
	}
	for _, ev := range events {
		s.HandleEvent(ev) // must not panic
	}
	if got := len(s.Threads.List()); got != 0 {
		t.Errorf("thread store polluted by malformed events: %d entries", got)
	}
}

func TestSession_SendWithoutOpenThread(t *testing.T) {
	s := newTestSession(newFakeAPI())
	if _, err := s.SendMessage("hi"); err != ErrNoOpenThread {
		t.Fatalf("error = %v, want ErrNoOpenThread", err)
	}
}
