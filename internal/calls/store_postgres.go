package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"shelter-platform/pkg/utils"
)

// NOTE: assumes call_records has UNIQUE (tenant_id, provider_call_id).
// See migrations/000002_call_records.up.sql.

var recordColumns = []string{
	"tenant_id",
	"provider_call_id",
	"direction",
	"status",
	"caller_number",
	"caller_name",
	"callee_number",
	"callee_name",
	"agent_id",
	"agent_name",
	"start_time",
	"end_time",
	"duration_seconds",
	"wait_seconds",
	"has_voicemail",
	"voicemail_url",
	"has_recording",
	"recording_url",
	"tags",
	"notes",
	"callback_needed",
	"raw_data",
	"synced_at",
}

var (
	upsertCallSQL = buildUpsertSQL()
	selectCallSQL = "SELECT " + strings.Join(recordColumns, ", ") + " FROM call_records"
)

func buildUpsertSQL() string {
	placeholders := make([]string, len(recordColumns))
	var updates []string
	for i, col := range recordColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col == "tenant_id" || col == "provider_call_id" {
			continue
		}
		updates = append(updates, col+" = EXCLUDED."+col)
	}
	return "INSERT INTO call_records (" + strings.Join(recordColumns, ", ") + ")\nVALUES (" +
		strings.Join(placeholders, ", ") + ")\nON CONFLICT (tenant_id, provider_call_id) DO UPDATE SET\n  " +
		strings.Join(updates, ",\n  ")
}

type PostgresStore struct {
	db utils.DB
}

func NewPostgresStore(db utils.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) UpsertCalls(ctx context.Context, tenantID string, records []CallRecord) (int, error) {
	if err := validateBatch(tenantID, records); err != nil {
		return 0, err
	}
	written := 0
	for _, r := range records {
		r.TenantID = tenantID
		if _, err := s.db.Exec(ctx, upsertCallSQL, recordArgs(r)...); err != nil {
			return written, fmt.Errorf("upsert call %s: %w", r.ProviderCallID, err)
		}
		written++
	}
	return written, nil
}

func recordArgs(r CallRecord) []any {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	raw := []byte(r.RawData)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	return []any{
		r.TenantID,
		r.ProviderCallID,
		string(r.Direction),
		string(r.Status),
		r.CallerNumber,
		r.CallerName,
		r.CalleeNumber,
		r.CalleeName,
		r.AgentID,
		r.AgentName,
		r.StartTime,
		r.EndTime,
		r.DurationSeconds,
		r.WaitSeconds,
		r.HasVoicemail,
		r.VoicemailURL,
		r.HasRecording,
		r.RecordingURL,
		tags,
		r.Notes,
		r.CallbackNeeded,
		raw,
		r.SyncedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (CallRecord, error) {
	var (
		r         CallRecord
		direction string
		status    string
		raw       []byte
	)
	if err := row.Scan(
		&r.TenantID,
		&r.ProviderCallID,
		&direction,
		&status,
		&r.CallerNumber,
		&r.CallerName,
		&r.CalleeNumber,
		&r.CalleeName,
		&r.AgentID,
		&r.AgentName,
		&r.StartTime,
		&r.EndTime,
		&r.DurationSeconds,
		&r.WaitSeconds,
		&r.HasVoicemail,
		&r.VoicemailURL,
		&r.HasRecording,
		&r.RecordingURL,
		&r.Tags,
		&r.Notes,
		&r.CallbackNeeded,
		&raw,
		&r.SyncedAt,
	); err != nil {
		return CallRecord{}, err
	}
	r.Direction = Direction(direction)
	r.Status = CallStatus(status)
	r.RawData = raw
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return r, nil
}

func (s *PostgresStore) ListCalls(ctx context.Context, tenantID string, filter ListFilter) ([]CallRecord, error) {
	q := selectCallSQL + " WHERE tenant_id = $1"
	args := []any{tenantID}
	if filter.CallbackNeeded != nil {
		args = append(args, *filter.CallbackNeeded)
		q += fmt.Sprintf(" AND callback_needed = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		q += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		q += fmt.Sprintf(" AND start_time < $%d", len(args))
	}
	args = append(args, filter.limit())
	q += fmt.Sprintf(" ORDER BY start_time DESC NULLS LAST, provider_call_id LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CallRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetCall(ctx context.Context, tenantID, providerCallID string) (CallRecord, error) {
	q := selectCallSQL + " WHERE tenant_id = $1 AND provider_call_id = $2"
	r, err := scanRecord(s.db.QueryRow(ctx, q, tenantID, providerCallID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	return r, nil
}

// UpdateNotes edits the operator fields in place. A nil tags slice keeps the stored tags.
func (s *PostgresStore) UpdateNotes(ctx context.Context, tenantID, providerCallID, notes string, tags []string) error {
	const q = `
UPDATE call_records
SET notes = $3, tags = COALESCE($4, tags)
WHERE tenant_id = $1 AND provider_call_id = $2
`
	var tagArg any
	if tags != nil {
		tagArg = tags
	}
	tag, err := s.db.Exec(ctx, q, tenantID, providerCallID, notes, tagArg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
