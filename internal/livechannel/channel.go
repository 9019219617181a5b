// File: internal/livechannel/channel.go
package livechannel

import (
	"github.com/carelinkhq/carelink/internal/domain"
)

// Channel is the live-connection boundary: it delivers inbound events (new
// message, read receipt, typing signal, thread update) and accepts outbound
// sends. Delivery is at-least-once and not strictly ordered; the stores own
// dedup and ordering.
type Channel interface {
	// Events yields inbound events until the channel is closed.
	Events() <-chan domain.Event

	// SendMessage pushes an outbound message over the live connection.
	SendMessage(msg domain.Message) error

	// SetTyping publishes the user's typing state for a thread.
	SetTyping(threadID string, isTyping bool) error

	Close() error
}
