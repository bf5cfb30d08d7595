package telephony

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"shelter-platform/internal/calls"
)

var (
	ErrConnectionNotFound = errors.New("telephony: connection not found")
	ErrInvalidConnection  = errors.New("telephony: invalid connection")
)

// TenantConnection binds a tenant to its provider account.
//
// Invariants:
// - At most one active connection per tenant.
// - SyncCursor only moves forward; it is the latest call start time persisted by a pull sync.
// - APIKey is a secret; it never leaves the service in API responses or logs.
type TenantConnection struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	APIKey string `json:"-" db:"api_key"`

	ReceptionNumber string `json:"reception_number,omitempty" db:"reception_number"`
	OnCallNumber    string `json:"on_call_number,omitempty" db:"on_call_number"`

	IsActive bool `json:"is_active" db:"is_active"`

	SyncCursor *time.Time `json:"sync_cursor,omitempty" db:"sync_cursor"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// OwnsNumber reports whether number reaches this tenant's reception or on-call line.
func (c TenantConnection) OwnsNumber(number string) bool {
	if c.ReceptionNumber != "" && calls.MatchNumber(number, c.ReceptionNumber) {
		return true
	}
	return c.OnCallNumber != "" && calls.MatchNumber(number, c.OnCallNumber)
}

// ConnectionRepository persists tenant connections.
// List order is stable (creation order) so number resolution is deterministic.
type ConnectionRepository interface {
	ListActive(ctx context.Context) ([]TenantConnection, error)
	GetActiveByTenant(ctx context.Context, tenantID string) (TenantConnection, error)

	// UpdateSyncState stores SyncCursor and LastSyncAt of conn. A cursor older than the stored one is ignored.
	UpdateSyncState(ctx context.Context, conn TenantConnection) error

	// Configure makes conn the tenant's only active connection.
	Configure(ctx context.Context, conn TenantConnection) (TenantConnection, error)
	// Deactivate keeps the row but stops syncing and webhook resolution for it.
	Deactivate(ctx context.Context, tenantID string) error
}

func validateConnection(conn TenantConnection) error {
	if conn.TenantID == "" || conn.APIKey == "" {
		return ErrInvalidConnection
	}
	return nil
}

// MemoryConnections is an in-memory ConnectionRepository for tests and local runs.
type MemoryConnections struct {
	mu    sync.Mutex
	conns []TenantConnection
	clock func() time.Time
}

func NewMemoryConnections(conns ...TenantConnection) *MemoryConnections {
	return &MemoryConnections{conns: conns, clock: time.Now}
}

func (r *MemoryConnections) ListActive(ctx context.Context) ([]TenantConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []TenantConnection{}
	for _, c := range r.conns {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryConnections) GetActiveByTenant(ctx context.Context, tenantID string) (TenantConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.IsActive && c.TenantID == tenantID {
			return c, nil
		}
	}
	return TenantConnection{}, ErrConnectionNotFound
}

func (r *MemoryConnections) UpdateSyncState(ctx context.Context, conn TenantConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.conns {
		if c.ID != conn.ID {
			continue
		}
		if conn.SyncCursor != nil && (c.SyncCursor == nil || conn.SyncCursor.After(*c.SyncCursor)) {
			cursor := *conn.SyncCursor
			r.conns[i].SyncCursor = &cursor
		}
		if conn.LastSyncAt != nil {
			at := *conn.LastSyncAt
			r.conns[i].LastSyncAt = &at
		}
		r.conns[i].UpdatedAt = r.clock().UTC()
		return nil
	}
	return ErrConnectionNotFound
}

func (r *MemoryConnections) Configure(ctx context.Context, conn TenantConnection) (TenantConnection, error) {
	if err := validateConnection(conn); err != nil {
		return TenantConnection{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock().UTC()
	for i, c := range r.conns {
		if c.TenantID == conn.TenantID && c.IsActive {
			r.conns[i].IsActive = false
			r.conns[i].UpdatedAt = now
		}
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	conn.IsActive = true
	conn.CreatedAt = now
	conn.UpdatedAt = now
	r.conns = append(r.conns, conn)
	return conn, nil
}

func (r *MemoryConnections) Deactivate(ctx context.Context, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for i, c := range r.conns {
		if c.TenantID == tenantID && c.IsActive {
			r.conns[i].IsActive = false
			r.conns[i].UpdatedAt = r.clock().UTC()
			found = true
		}
	}
	if !found {
		return ErrConnectionNotFound
	}
	return nil
}

// Get returns a connection by id regardless of its state.
func (r *MemoryConnections) Get(id string) (TenantConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.ID == id {
			return c, true
		}
	}
	return TenantConnection{}, false
}
