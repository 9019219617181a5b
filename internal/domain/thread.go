// File: internal/domain/thread.go
package domain

import "time"

type ThreadType string

const (
	ThreadTypeClient    ThreadType = "client"
	ThreadTypeGeneral   ThreadType = "general"
	ThreadTypeBroadcast ThreadType = "broadcast"
)

func (tt ThreadType) IsValid() bool {
	switch tt {
	case ThreadTypeClient, ThreadTypeGeneral, ThreadTypeBroadcast:
		return true
	}
	return false
}

// Participant is a full participant record carried on a thread, as opposed
// to the bare id lists used for membership checks.
type Participant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// Thread is a conversation between a set of participants, scoped to a
// care recipient ("client") or general. A thread id is a client-minted UUID
// while the thread is optimistic and the server id after confirmation.
type Thread struct {
	ID                 string        `json:"id"`
	Type               ThreadType    `json:"type"`
	ClientID           string        `json:"client_id,omitempty"`
	DisplayName        string        `json:"display_name,omitempty"`
	ParticipantIDs     []string      `json:"participants_ids"`
	Participants       []Participant `json:"participants,omitempty"`
	LeftParticipants   []Participant `json:"left_participants,omitempty"`
	LeftParticipantIDs []string      `json:"left_participants_ids,omitempty"`
	CreatedBy          string        `json:"created_by"`
	LastMessagePreview string        `json:"last_message_preview,omitempty"`
	LastMessageTime    time.Time     `json:"last_message_time,omitempty"`
	UnreadCount        int           `json:"unread_count"`
	CreatedAt          time.Time     `json:"created_at,omitempty"`
}

// HasParticipant reports whether userID is a current (non-left) participant.
func (t *Thread) HasParticipant(userID string) bool {
	for _, id := range t.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasLeft reports whether userID left the thread.
func (t *Thread) HasLeft(userID string) bool {
	for _, id := range t.LeftParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ParticipantByID looks up a full participant record, current or left.
func (t *Thread) ParticipantByID(userID string) (Participant, bool) {
	for _, p := range t.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	for _, p := range t.LeftParticipants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}
