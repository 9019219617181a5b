// File: internal/domain/pending.go
package domain

// PendingThread is a client-side-only thread synthesized when the user starts
// a new conversation, awaiting server assignment of a permanent id. The
// creator is always present in ParticipantIDs.
type PendingThread struct {
	ID             string
	Type           ThreadType
	ClientID       string
	DisplayName    string
	ParticipantIDs []string
	Participants   []Participant
	CreatedBy      string
}

// AsThread converts the draft into a displayable thread so the compose view
// can render it before confirmation.
func (p *PendingThread) AsThread() Thread {
	return Thread{
		ID:             p.ID,
		Type:           p.Type,
		ClientID:       p.ClientID,
		DisplayName:    p.DisplayName,
		ParticipantIDs: append([]string(nil), p.ParticipantIDs...),
		Participants:   append([]Participant(nil), p.Participants...),
		CreatedBy:      p.CreatedBy,
	}
}
