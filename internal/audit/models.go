package audit

import "time"

// Event is an append-only record of an operator action on a tenant's telephony setup.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required.
// - Metadata never carries provider API keys.
type Event struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	Type EventType `json:"type" db:"type"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers, depending on Type.
	ConnectionID string `json:"connection_id,omitempty" db:"connection_id"`
	CallID       string `json:"call_id,omitempty" db:"call_id"`

	Message string `json:"message,omitempty" db:"message"`
	// Metadata is a JSON object.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeConnectionConfigured  EventType = "connection_configured"
	EventTypeConnectionDeactivated EventType = "connection_deactivated"
	EventTypeCallAnnotated         EventType = "call_annotated"
)
