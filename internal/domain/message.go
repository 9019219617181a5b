// File: internal/domain/message.go
package domain

import "time"

// ReadBy records that a user has viewed a message.
type ReadBy struct {
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// Message is a single chat message. The id is a client-minted UUID for an
// optimistic send and the server id once the echo arrives.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	ReadBy    []ReadBy  `json:"read_by,omitempty"`
}

// IsReadBy reports whether userID has a read-by entry on the message.
func (m *Message) IsReadBy(userID string) bool {
	for _, rb := range m.ReadBy {
		if rb.UserID == userID {
			return true
		}
	}
	return false
}
