package events

import "time"

const (
	DocCreated = "DOC_CREATED"
	DocUpdated = "DOC_UPDATED"
	DocDeleted = "DOC_DELETED"
	DocShared  = "DOC_SHARED"
)

// DocEvent is published for every persisted change to a document.
type DocEvent struct {
	EventType  string    `json:"eventType"`
	EventID    string    `json:"eventId"`
	DocID      string    `json:"docId"`
	ActorID    string    `json:"actorId"`
	Fields     []string  `json:"fields,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
