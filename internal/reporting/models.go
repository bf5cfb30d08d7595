package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest selects a tenant's calls by start time, From inclusive and To exclusive.
type CallsSummaryRequest struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`
}

type CallsSummary struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`

	TotalCalls    int `json:"total_calls"`
	InboundCalls  int `json:"inbound_calls"`
	OutboundCalls int `json:"outbound_calls"`

	AnsweredCalls  int `json:"answered_calls"`
	MissedCalls    int `json:"missed_calls"`
	VoicemailCalls int `json:"voicemail_calls"`
	FailedCalls    int `json:"failed_calls"`

	// CallbacksOutstanding counts calls still flagged callback_needed.
	CallbacksOutstanding int `json:"callbacks_outstanding"`
	RecordedCalls        int `json:"recorded_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
	// AverageWaitSeconds is over inbound calls only.
	AverageWaitSeconds int `json:"average_wait_seconds"`
}
