package rbac

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("rbac: unauthenticated")
	ErrNoMembership    = errors.New("rbac: no membership for tenant")
	ErrForbidden       = errors.New("rbac: forbidden")
)

// Repository loads memberships and groups. Reads must be fresh; nothing is cached.
type Repository interface {
	// ListMemberships returns the user's memberships in a stable default order.
	ListMemberships(ctx context.Context, userID string) ([]Membership, error)
	ListGroups(ctx context.Context, membershipID string) ([]Group, error)
}

// Access is the authorized context of one request.
type Access struct {
	UserID       string        `json:"user_id"`
	TenantID     string        `json:"tenant_id"`
	MembershipID string        `json:"membership_id"`
	Capabilities CapabilitySet `json:"-"`
}

func (a Access) Can(c Capability) bool { return a.Capabilities.Has(c) }

type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver { return &Resolver{repo: repo} }

// RequireTenant resolves the membership only.
// With no selection it falls back to the user's first membership. That fallback picks
// some tenant the user belongs to; it is not an access decision.
func (r *Resolver) RequireTenant(ctx context.Context, userID, selectedTenantID string) (Access, error) {
	if userID == "" {
		return Access{}, ErrUnauthenticated
	}
	memberships, err := r.repo.ListMemberships(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	if len(memberships) == 0 {
		return Access{}, ErrNoMembership
	}

	m := memberships[0]
	if selectedTenantID != "" {
		found := false
		for _, candidate := range memberships {
			if candidate.TenantID == selectedTenantID {
				m, found = candidate, true
				break
			}
		}
		if !found {
			return Access{}, ErrNoMembership
		}
	}

	groups, err := r.repo.ListGroups(ctx, m.ID)
	if err != nil {
		return Access{}, err
	}
	return Access{
		UserID:       userID,
		TenantID:     m.TenantID,
		MembershipID: m.ID,
		Capabilities: EffectiveCapabilities(groups),
	}, nil
}

// RequireCapability resolves the membership and checks c against the union of its groups.
func (r *Resolver) RequireCapability(ctx context.Context, userID, selectedTenantID string, c Capability) (Access, error) {
	a, err := r.RequireTenant(ctx, userID, selectedTenantID)
	if err != nil {
		return Access{}, err
	}
	if !a.Can(c) {
		return Access{}, ErrForbidden
	}
	return a, nil
}

// StatusFor maps resolver errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNoMembership), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

type ctxKey struct{}

func WithAccess(ctx context.Context, a Access) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func AccessFrom(ctx context.Context) (Access, bool) {
	a, ok := ctx.Value(ctxKey{}).(Access)
	return a, ok
}
