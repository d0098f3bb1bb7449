package audit

import "time"

// Event records an admin action against a church's messages. Rows in
// audit_events are insert-only.
type Event struct {
	ID        string    `json:"id"`
	ChurchID  string    `json:"churchId"`
	Type      EventType `json:"type"`
	CreatedAt time.Time `json:"createdAt"`

	// Actor fields are filled from the request identity when empty.
	ActorUserID string `json:"actorUserId,omitempty"`
	ActorRole   string `json:"actorRole,omitempty"`
	IPAddress   string `json:"ipAddress,omitempty"`

	MessageID string `json:"messageId,omitempty"`
	Message   string `json:"message,omitempty"`
	// Metadata is a JSON object.
	Metadata string `json:"metadata,omitempty"`
}

type EventType string

const (
	EventTypeSMSSent            EventType = "sms_sent"
	EventTypeMessagesMarkedRead EventType = "messages_marked_read"
)
