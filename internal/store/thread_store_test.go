package store

import (
	"testing"
	"time"

	"github.com/carelinkhq/carelink/internal/domain"
)

func TestThreadStore_AddOrUpdate_InsertsUnknownID(t *testing.T) {
	s := NewThreadStore()
	s.AddOrUpdate(domain.Thread{ID: "t1", Type: domain.ThreadTypeGeneral})

	got, ok := s.Get("t1")
	if !ok {
		t.Fatal("expected thread t1 to be present")
	}
	if got.Type != domain.ThreadTypeGeneral {
		t.Errorf("Type = %q, want %q", got.Type, domain.ThreadTypeGeneral)
	}
}

func TestThreadStore_AddOrUpdate_MergeKeepsPopulatedFields(t *testing.T) {
	s := NewThreadStore()
	s.AddOrUpdate(domain.Thread{
		ID:                 "t1",
		Type:               domain.ThreadTypeClient,
		ClientID:           "c9",
		ParticipantIDs:     []string{"u1", "u2"},
		LastMessagePreview: "hello",
	})

	// Partial update with empty fields must not clobber populated ones.
	s.AddOrUpdate(domain.Thread{ID: "t1", DisplayName: "Care team"})

	got, _ := s.Get("t1")
	if got.ClientID != "c9" {
		t.Errorf("ClientID = %q, want c9", got.ClientID)
	}
	if got.LastMessagePreview != "hello" {
		t.Errorf("LastMessagePreview = %q, want hello", got.LastMessagePreview)
	}
	if got.DisplayName != "Care team" {
		t.Errorf("DisplayName = %q, want Care team", got.DisplayName)
	}
	if len(got.ParticipantIDs) != 2 {
		t.Errorf("ParticipantIDs = %v, want 2 entries", got.ParticipantIDs)
	}
}

func TestThreadStore_ListOrderedByRecency(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewThreadStore()
	s.AddOrUpdate(domain.Thread{ID: "old", LastMessageTime: base})
	s.AddOrUpdate(domain.Thread{ID: "new", LastMessageTime: base.Add(time.Hour)})
	s.AddOrUpdate(domain.Thread{ID: "mid", LastMessageTime: base.Add(30 * time.Minute)})

	got := s.List()
	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("List()[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestThreadStore_ResortStableOnTies(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewThreadStore()
	s.AddOrUpdate(domain.Thread{ID: "a", LastMessageTime: ts})
	s.AddOrUpdate(domain.Thread{ID: "b", LastMessageTime: ts})
	s.AddOrUpdate(domain.Thread{ID: "c", LastMessageTime: ts})

	s.ResortByRecency()
	s.ResortByRecency()

	got := s.List()
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("tie order changed: List()[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestThreadStore_UnreadCounting(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewThreadStore()
	s.AddOrUpdate(domain.Thread{ID: "t1", ParticipantIDs: []string{"u1", "u2"}})

	// Closed thread: inbound messages increment unread.
	s.ApplyIncomingMessage("t1", "u2", "one", at)
	s.ApplyIncomingMessage("t1", "u2", "two", at.Add(time.Minute))
	if got, _ := s.Get("t1"); got.UnreadCount != 2 {
		t.Fatalf("UnreadCount = %d, want 2", got.UnreadCount)
	}

	// Opening resets to zero.
	s.MarkOpen("t1")
	if got, _ := s.Get("t1"); got.UnreadCount != 0 {
		t.Fatalf("UnreadCount after open = %d, want 0", got.UnreadCount)
	}

	// Open thread: inbound messages do not increment.
	s.ApplyIncomingMessage("t1", "u2", "three", at.Add(2*time.Minute))
	if got, _ := s.Get("t1"); got.UnreadCount != 0 {
		t.Fatalf("UnreadCount while open = %d, want 0", got.UnreadCount)
	}

	// Closed again: increments resume.
	s.ClearOpen()
	s.ApplyIncomingMessage("t1", "u2", "four", at.Add(3*time.Minute))
	if got, _ := s.Get("t1"); got.UnreadCount != 1 {
		t.Fatalf("UnreadCount after close = %d, want 1", got.UnreadCount)
	}
}

func TestThreadStore_ApplyIncomingMessage_UnknownThreadInserts(t *testing.T) {
	s := NewThreadStore()
	s.ApplyIncomingMessage("t9", "u2", "hi", time.Now())

	got, ok := s.Get("t9")
	if !ok {
		t.Fatal("expected stub thread for unknown id")
	}
	if got.LastMessagePreview != "hi" {
		t.Errorf("LastMessagePreview = %q, want hi", got.LastMessagePreview)
	}
	if got.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", got.UnreadCount)
	}
}

func TestThreadStore_FindByParticipants(t *testing.T) {
	s := NewThreadStore()
	s.AddOrUpdate(domain.Thread{
		ID:             "t1",
		Type:           domain.ThreadTypeGeneral,
		ParticipantIDs: []string{"u2", "u1"},
	})
	s.AddOrUpdate(domain.Thread{
		ID:             "t2",
		Type:           domain.ThreadTypeClient,
		ClientID:       "c1",
		ParticipantIDs: []string{"u1", "u2"},
	})

	tests := []struct {
		name       string
		ids        []string
		threadType domain.ThreadType
		wantID     string
		wantFound  bool
	}{
		{"general scope matches regardless of order", []string{"u1", "u2"}, domain.ThreadTypeGeneral, "t1", true},
		{"client scope is distinct", []string{"u1", "u2"}, domain.ThreadTypeClient, "t2", true},
		{"different set", []string{"u1", "u3"}, domain.ThreadTypeGeneral, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := s.FindByParticipants(tt.ids, tt.threadType)
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if found && got.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", got.ID, tt.wantID)
			}
		})
	}
}
