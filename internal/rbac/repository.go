package rbac

import (
	"context"
	"strings"
	"sync"

	"shelter-platform/pkg/utils"
)

// MemoryRepository keeps memberships in insertion order.
type MemoryRepository struct {
	mu          sync.Mutex
	memberships []Membership
	groups      map[string][]Group // key: membership id
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{groups: map[string][]Group{}}
}

func (r *MemoryRepository) AddMembership(m Membership, groups ...Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships = append(r.memberships, m)
	r.groups[m.ID] = append(r.groups[m.ID], groups...)
}

// SetGroups replaces the groups of a membership.
func (r *MemoryRepository) SetGroups(membershipID string, groups ...Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[membershipID] = groups
}

func (r *MemoryRepository) ListMemberships(ctx context.Context, userID string) ([]Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Membership{}
	for _, m := range r.memberships {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListGroups(ctx context.Context, membershipID string) ([]Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Group, len(r.groups[membershipID]))
	copy(out, r.groups[membershipID])
	return out, nil
}

// NOTE: permission_groups carries one boolean column per Capability.
// See migrations/000003_permissions.up.sql.

type PostgresRepository struct {
	db utils.DB
}

func NewPostgresRepository(db utils.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListMemberships(ctx context.Context, userID string) ([]Membership, error) {
	const q = `
SELECT id, tenant_id, user_id, created_at
FROM memberships
WHERE user_id = $1
ORDER BY created_at, id
`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Membership{}
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.TenantID, &m.UserID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var listGroupsSQL = func() string {
	cols := make([]string, len(Capabilities))
	for i, c := range Capabilities {
		cols[i] = "g." + string(c)
	}
	return `
SELECT g.id, g.tenant_id, g.name, g.is_admin, ` + strings.Join(cols, ", ") + `
FROM permission_groups g
JOIN membership_groups mg ON mg.group_id = g.id
WHERE mg.membership_id = $1
ORDER BY g.name, g.id
`
}()

func (r *PostgresRepository) ListGroups(ctx context.Context, membershipID string) ([]Group, error) {
	rows, err := r.db.Query(ctx, listGroupsSQL, membershipID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Group{}
	for rows.Next() {
		var g Group
		flags := make([]bool, len(Capabilities))
		dest := []any{&g.ID, &g.TenantID, &g.Name, &g.IsAdmin}
		for i := range flags {
			dest = append(dest, &flags[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		g.Capabilities = CapabilitySet{}
		for i, granted := range flags {
			if granted {
				g.Capabilities[Capabilities[i]] = struct{}{}
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
