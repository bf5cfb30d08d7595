package calls

import (
	"time"

	"github.com/goccy/go-json"
)

// CallRecord is the canonical, tenant-scoped representation of one phone call.
//
// Identity: (TenantID, ProviderCallID) is unique. Every write is an upsert on that pair.
// CallbackNeeded is derived at ingestion time by Normalize, never at read time.
type CallRecord struct {
	TenantID       string `json:"tenant_id" db:"tenant_id"`
	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`

	Direction Direction  `json:"direction" db:"direction"`
	Status    CallStatus `json:"status" db:"status"`

	CallerNumber string `json:"caller_number,omitempty" db:"caller_number"`
	CallerName   string `json:"caller_name,omitempty" db:"caller_name"`
	CalleeNumber string `json:"callee_number,omitempty" db:"callee_number"`
	CalleeName   string `json:"callee_name,omitempty" db:"callee_name"`
	AgentID      string `json:"agent_id,omitempty" db:"agent_id"`
	AgentName    string `json:"agent_name,omitempty" db:"agent_name"`

	StartTime *time.Time `json:"start_time,omitempty" db:"start_time"`
	// EndTime is nil while the call is in progress.
	EndTime *time.Time `json:"end_time,omitempty" db:"end_time"`

	DurationSeconds int `json:"duration" db:"duration_seconds"`
	WaitSeconds     int `json:"wait_time" db:"wait_seconds"`

	HasVoicemail bool   `json:"has_voicemail" db:"has_voicemail"`
	VoicemailURL string `json:"voicemail_url,omitempty" db:"voicemail_url"`
	HasRecording bool   `json:"has_recording" db:"has_recording"`
	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`

	Tags  []string `json:"tags" db:"tags"`
	Notes string   `json:"notes,omitempty" db:"notes"`

	CallbackNeeded bool `json:"callback_needed" db:"callback_needed"`

	// RawData is the provider payload as received, kept for audit.
	RawData json.RawMessage `json:"raw_data,omitempty" db:"raw_data"`

	SyncedAt time.Time `json:"synced_at" db:"synced_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionUnknown  Direction = "unknown"
)

type CallStatus string

const (
	CallStatusAnswered  CallStatus = "answered"
	CallStatusMissed    CallStatus = "missed"
	CallStatusVoicemail CallStatus = "voicemail"
	CallStatusFailed    CallStatus = "failed"
	CallStatusUnknown   CallStatus = "unknown"
)

// NeedsCallback reports whether a call with this direction and status must be called back.
func NeedsCallback(d Direction, s CallStatus) bool {
	if d != DirectionInbound {
		return false
	}
	return s == CallStatusMissed || s == CallStatusVoicemail
}
