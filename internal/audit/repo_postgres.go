package audit

import (
	"context"
	"fmt"

	"shelter-platform/pkg/utils"
)

// PostgresRepo writes to audit_events. The table grants INSERT and SELECT only.
type PostgresRepo struct {
	db utils.DB
}

func NewPostgresRepo(db utils.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const insertEventSQL = `INSERT INTO audit_events
	(id, tenant_id, type, actor_user_id, ip_address, connection_id, call_id, message, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	metadata := e.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	_, err := r.db.Exec(ctx, insertEventSQL,
		e.ID, e.TenantID, string(e.Type), e.ActorUserID, e.IPAddress,
		e.ConnectionID, e.CallID, e.Message, metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: append %s: %w", e.Type, err)
	}
	return nil
}

const listEventsSQL = `SELECT id, tenant_id, type, actor_user_id, ip_address, connection_id, call_id, message, metadata, created_at
	FROM audit_events WHERE tenant_id = $1 ORDER BY created_at DESC, id LIMIT $2`

func (r *PostgresRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	rows, err := r.db.Query(ctx, listEventsSQL, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var (
			e   Event
			typ string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &typ, &e.ActorUserID, &e.IPAddress,
			&e.ConnectionID, &e.CallID, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
