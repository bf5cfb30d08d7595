package calls

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Payload is one loosely-typed provider call object, as decoded from JSON
// (numbers as float64 or json.Number).
// The pull API and the webhook push name the same fields differently; Normalize
// resolves each canonical field through a fixed key fallback order.
type Payload map[string]any

var (
	callIDKeys       = []string{"call_id", "cdr_id", "id"}
	directionKeys    = []string{"direction", "type"}
	statusKeys       = []string{"last_state", "status", "state"}
	callerNumberKeys = []string{"from_number", "caller_number", "from"}
	callerNameKeys   = []string{"from_name", "caller_name"}
	calleeNumberKeys = []string{"to_number", "callee_number", "to"}
	calleeNameKeys   = []string{"to_name", "callee_name"}
	agentIDKeys      = []string{"user_id", "agent_id"}
	agentNameKeys    = []string{"user_name", "agent_name"}
	startKeys        = []string{"start_time", "started_at", "date"}
	endKeys          = []string{"end_time", "ended_at", "hangup_time"}
	durationKeys     = []string{"total_duration", "duration", "incall_duration"}
	waitKeys         = []string{"queue_duration", "wait_time", "ringing_duration"}
	voicemailURLKeys = []string{"voicemail_url", "voicemail"}
	recordingURLKeys = []string{"recording_url", "record"}
	notesKeys        = []string{"notes", "note", "comments"}
)

const contactNameKey = "contact_name"

// Normalize maps a provider payload into a CallRecord for tenantID.
// It is total: missing or malformed optional fields resolve to "", nil, 0 or false.
func Normalize(tenantID string, p Payload, syncedAt time.Time) CallRecord {
	rec := CallRecord{
		TenantID:        tenantID,
		ProviderCallID:  p.firstString(callIDKeys...),
		Direction:       parseDirection(p.firstString(directionKeys...)),
		CallerNumber:    p.firstString(callerNumberKeys...),
		CallerName:      p.firstString(callerNameKeys...),
		CalleeNumber:    p.firstString(calleeNumberKeys...),
		CalleeName:      p.firstString(calleeNameKeys...),
		StartTime:       p.firstTime(startKeys...),
		EndTime:         p.firstTime(endKeys...),
		DurationSeconds: p.firstInt(durationKeys...),
		WaitSeconds:     p.firstInt(waitKeys...),
		VoicemailURL:    p.firstURL(voicemailURLKeys...),
		RecordingURL:    p.firstURL(recordingURLKeys...),
		Tags:            p.tags(),
		Notes:           p.firstString(notesKeys...),
		SyncedAt:        syncedAt.UTC(),
	}

	// The contact is the remote party: the caller on inbound calls, the callee on outbound ones.
	if contact := p.firstString(contactNameKey); contact != "" {
		if rec.Direction == DirectionOutbound {
			if rec.CalleeName == "" {
				rec.CalleeName = contact
			}
		} else if rec.CallerName == "" {
			rec.CallerName = contact
		}
	}

	rec.Status = parseStatus(p.firstString(statusKeys...))
	if rec.Status == CallStatusUnknown {
		if answered, ok := p.boolean("is_answered"); ok && answered {
			rec.Status = CallStatusAnswered
		}
	}

	rec.AgentID, rec.AgentName = p.agent()

	rec.HasVoicemail = p.flag("has_voicemail", rec.VoicemailURL)
	rec.HasRecording = p.flag("has_recording", rec.RecordingURL)

	rec.CallbackNeeded = NeedsCallback(rec.Direction, rec.Status)

	if raw, err := json.Marshal(map[string]any(p)); err == nil {
		rec.RawData = raw
	}
	return rec
}

func parseDirection(v string) Direction {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "in", "inbound", "incoming":
		return DirectionInbound
	case "out", "outbound", "outgoing":
		return DirectionOutbound
	default:
		return DirectionUnknown
	}
}

func parseStatus(v string) CallStatus {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "answered", "completed", "hungup_answered":
		return CallStatusAnswered
	case "missed", "no_answer", "noanswer", "busy", "cancel", "canceled", "cancelled", "abandoned":
		return CallStatusMissed
	case "voicemail", "voice_mail":
		return CallStatusVoicemail
	case "failed", "error":
		return CallStatusFailed
	default:
		return CallStatusUnknown
	}
}

func (p Payload) firstString(keys ...string) string {
	for _, k := range keys {
		if s := stringValue(p[k]); s != "" {
			return s
		}
	}
	return ""
}

func (p Payload) firstInt(keys ...string) int {
	for _, k := range keys {
		if n, ok := intValue(p[k]); ok {
			return n
		}
	}
	return 0
}

func (p Payload) firstTime(keys ...string) *time.Time {
	for _, k := range keys {
		if t, ok := timeValue(p[k]); ok {
			return &t
		}
	}
	return nil
}

func (p Payload) firstURL(keys ...string) string {
	for _, k := range keys {
		s := stringValue(p[k])
		if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			return s
		}
	}
	return ""
}

func (p Payload) boolean(key string) (bool, bool) {
	switch v := p[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return b, true
	case float64:
		return v != 0, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return false, false
		}
		return f != 0, true
	default:
		return false, false
	}
}

// flag is true when the explicit boolean says so or a URL for the media is present.
func (p Payload) flag(key, url string) bool {
	if b, ok := p.boolean(key); ok && b {
		return true
	}
	return url != ""
}

func (p Payload) agent() (id, name string) {
	id = p.firstString(agentIDKeys...)
	name = p.firstString(agentNameKeys...)

	user, ok := p["user"].(map[string]any)
	if !ok {
		return id, name
	}
	u := Payload(user)
	if id == "" {
		id = u.firstString("user_id", "id")
	}
	if name == "" {
		name = u.firstString("concat_name", "name")
	}
	if name == "" {
		name = strings.TrimSpace(u.firstString("firstname") + " " + u.firstString("lastname"))
	}
	return id, name
}

func (p Payload) tags() []string {
	out := []string{}
	switch v := p["tags"].(type) {
	case []any:
		for _, item := range v {
			var s string
			switch t := item.(type) {
			case map[string]any:
				s = Payload(t).firstString("name", "label")
			default:
				s = stringValue(t)
			}
			if s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return int(f), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int(f), true
	default:
		return 0, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixTime(n), true
		}
		return time.Time{}, false
	case float64:
		if t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		return unixTime(int64(t)), true
	case json.Number:
		n, err := t.Int64()
		if err != nil || n <= 0 {
			return time.Time{}, false
		}
		return unixTime(n), true
	case int64:
		return unixTime(t), true
	case int:
		return unixTime(int64(t)), true
	default:
		return time.Time{}, false
	}
}

// unixTime accepts seconds or milliseconds.
func unixTime(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
