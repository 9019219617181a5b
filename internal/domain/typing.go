// File: internal/domain/typing.go
package domain

// TypingSignal is an ephemeral indicator that a user is composing a message
// in a thread. It carries no timestamp on the wire; receivers stamp arrival
// time and expire stale entries themselves.
type TypingSignal struct {
	ThreadID    string `json:"thread_id"`
	UserID      string `json:"user_id"`
	IsTyping    bool   `json:"is_typing"`
	DisplayName string `json:"display_name,omitempty"`
}
