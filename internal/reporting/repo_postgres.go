package reporting

import (
	"context"
	"time"

	"shelter-platform/internal/calls"
	"shelter-platform/pkg/utils"
)

// PostgresRepo reads the columns the summaries need from call_records.
type PostgresRepo struct {
	db utils.DB
}

func NewPostgresRepo(db utils.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const listCallsSQL = `SELECT provider_call_id, direction, status, start_time,
	duration_seconds, wait_seconds, has_recording, callback_needed
	FROM call_records
	WHERE tenant_id = $1 AND start_time >= $2 AND start_time < $3`

func (r *PostgresRepo) ListCalls(ctx context.Context, tenantID string, from, to time.Time) ([]calls.CallRecord, error) {
	rows, err := r.db.Query(ctx, listCallsSQL, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]calls.CallRecord, 0)
	for rows.Next() {
		var (
			rec       calls.CallRecord
			direction string
			status    string
		)
		if err := rows.Scan(&rec.ProviderCallID, &direction, &status, &rec.StartTime,
			&rec.DurationSeconds, &rec.WaitSeconds, &rec.HasRecording, &rec.CallbackNeeded); err != nil {
			return nil, err
		}
		rec.TenantID = tenantID
		rec.Direction = calls.Direction(direction)
		rec.Status = calls.CallStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
