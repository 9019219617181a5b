// File: internal/domain/event.go
package domain

import "encoding/json"

// EventType identifies an inbound or outbound live-channel event.
type EventType string

const (
	EventNewMessage   EventType = "new_message"
	EventReadReceipt  EventType = "read_receipt"
	EventTypingSignal EventType = "typing_signal"
	EventThreadUpdate EventType = "thread_update"
)

// Event is the envelope carried over the live channel. Payload shape depends
// on Type; decoding is the receiver's responsibility so a malformed payload
// can be dropped without tearing down the connection.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ReadReceiptEvent is the payload of an EventReadReceipt.
type ReadReceiptEvent struct {
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
	ReadBy    ReadBy `json:"read_by"`
}

// NewEvent wraps a payload into an envelope. Marshal failures are impossible
// for the domain payload types, so the error is swallowed.
func NewEvent(t EventType, payload any) Event {
	raw, _ := json.Marshal(payload)
	return Event{Type: t, Payload: raw}
}
