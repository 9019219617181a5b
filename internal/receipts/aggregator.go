// File: internal/receipts/aggregator.go
package receipts

import (
	"sort"
	"time"

	"github.com/carelinkhq/carelink/internal/domain"
)

// Entry is the per-participant read status derived for one message. ReadAt is
// zero when the participant has not read it.
type Entry struct {
	Participant       domain.Participant
	HasRead           bool
	ReadAt            time.Time
	IsLeftParticipant bool
}

// ForMessage derives the read-receipt rows for a message from its thread's
// participant roster, including users who have since left. Receipts are only
// shown on messages the current user sent; for anything else the result is
// nil. Rows are sorted read-first (most recent read first), then unread in
// original roster order.
func ForMessage(msg domain.Message, thread domain.Thread, currentUserID string) []Entry {
	if msg.SenderID != currentUserID {
		return nil
	}

	readAt := make(map[string]domain.ReadBy, len(msg.ReadBy))
	for _, rb := range msg.ReadBy {
		readAt[rb.UserID] = rb
	}

	roster := make([]domain.Participant, 0, len(thread.Participants)+len(thread.LeftParticipants))
	left := make(map[string]bool, len(thread.LeftParticipantIDs))
	roster = append(roster, thread.Participants...)
	for _, p := range thread.LeftParticipants {
		roster = append(roster, p)
		left[p.UserID] = true
	}
	for _, id := range thread.LeftParticipantIDs {
		left[id] = true
	}

	var entries []Entry
	for _, p := range roster {
		// The sender "sent" their own message; they do not appear as a reader.
		if p.UserID == msg.SenderID {
			continue
		}
		rb, read := readAt[p.UserID]
		entries = append(entries, Entry{
			Participant:       p,
			HasRead:           read,
			ReadAt:            rb.ReadAt,
			IsLeftParticipant: left[p.UserID],
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.HasRead != b.HasRead {
			return a.HasRead
		}
		if a.HasRead && b.HasRead {
			return a.ReadAt.After(b.ReadAt)
		}
		return false // unread entries keep roster order
	})
	return entries
}

// IsAllRead reports whether every current (non-left) participant other than
// the sender has read the message. Left participants count only through read
// entries recorded before they left.
func IsAllRead(msg domain.Message, thread domain.Thread) bool {
	required := 0
	for _, id := range thread.ParticipantIDs {
		if id == msg.SenderID || thread.HasLeft(id) {
			continue
		}
		required++
	}
	if required == 0 {
		return true
	}

	readers := 0
	for _, rb := range msg.ReadBy {
		if rb.UserID != msg.SenderID {
			readers++
		}
	}
	return readers >= required
}
