package telephony

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"shelter-platform/pkg/utils"
)

// NOTE: assumes a partial unique index tenant_connections(tenant_id) WHERE is_active.

const connectionColumns = `id, tenant_id, api_key, reception_number, on_call_number, is_active, sync_cursor, last_sync_at, created_at, updated_at`

type PostgresConnections struct {
	db    utils.DB
	clock func() time.Time
}

func NewPostgresConnections(db utils.DB) *PostgresConnections {
	return &PostgresConnections{db: db, clock: time.Now}
}

func scanConnection(row interface{ Scan(dest ...any) error }) (TenantConnection, error) {
	var c TenantConnection
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.APIKey,
		&c.ReceptionNumber,
		&c.OnCallNumber,
		&c.IsActive,
		&c.SyncCursor,
		&c.LastSyncAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

func (r *PostgresConnections) ListActive(ctx context.Context) ([]TenantConnection, error) {
	const q = `SELECT ` + connectionColumns + `
FROM tenant_connections
WHERE is_active
ORDER BY created_at, id
`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TenantConnection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresConnections) GetActiveByTenant(ctx context.Context, tenantID string) (TenantConnection, error) {
	const q = `SELECT ` + connectionColumns + `
FROM tenant_connections
WHERE tenant_id = $1 AND is_active
`
	c, err := scanConnection(r.db.QueryRow(ctx, q, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantConnection{}, ErrConnectionNotFound
		}
		return TenantConnection{}, err
	}
	return c, nil
}

func (r *PostgresConnections) UpdateSyncState(ctx context.Context, conn TenantConnection) error {
	// GREATEST ignores NULLs, so a nil or older cursor never moves the stored one back.
	const q = `
UPDATE tenant_connections
SET sync_cursor = GREATEST(sync_cursor, $2),
    last_sync_at = COALESCE($3, last_sync_at),
    updated_at = $4
WHERE id = $1
`
	tag, err := r.db.Exec(ctx, q, conn.ID, conn.SyncCursor, conn.LastSyncAt, r.clock().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

func (r *PostgresConnections) Configure(ctx context.Context, conn TenantConnection) (TenantConnection, error) {
	if err := validateConnection(conn); err != nil {
		return TenantConnection{}, err
	}
	now := r.clock().UTC()
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	conn.IsActive = true
	conn.CreatedAt = now
	conn.UpdatedAt = now

	err := utils.WithTx(ctx, r.db, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		const deactivate = `
UPDATE tenant_connections
SET is_active = false, updated_at = $2
WHERE tenant_id = $1 AND is_active
`
		if _, err := tx.Exec(ctx, deactivate, conn.TenantID, now); err != nil {
			return err
		}
		const insert = `
INSERT INTO tenant_connections (` + connectionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
		_, err := tx.Exec(ctx, insert,
			conn.ID,
			conn.TenantID,
			conn.APIKey,
			conn.ReceptionNumber,
			conn.OnCallNumber,
			conn.IsActive,
			conn.SyncCursor,
			conn.LastSyncAt,
			conn.CreatedAt,
			conn.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return TenantConnection{}, err
	}
	return conn, nil
}

func (r *PostgresConnections) Deactivate(ctx context.Context, tenantID string) error {
	const q = `
UPDATE tenant_connections
SET is_active = false, updated_at = $2
WHERE tenant_id = $1 AND is_active
`
	tag, err := r.db.Exec(ctx, q, tenantID, r.clock().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConnectionNotFound
	}
	return nil
}
