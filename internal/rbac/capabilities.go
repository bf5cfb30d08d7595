package rbac

import (
	"sort"
	"time"
)

// Capability is one boolean permission flag a group can carry.
// Keep these stable; they are stored as column names.
type Capability string

const (
	CapManageEstablishment Capability = "manage_establishment"
	CapManageDonations     Capability = "manage_donations"
	CapManageCalls         Capability = "manage_calls"
	CapManageAnimals       Capability = "manage_animals"
	CapManageDocuments     Capability = "manage_documents"
	CapManageOutings       Capability = "manage_outings"
	CapManagePublications  Capability = "manage_publications"

	// CapabilityAll is carried by administrator groups and satisfies every check.
	CapabilityAll Capability = "*"
)

// Capabilities lists every grantable capability, in storage column order.
var Capabilities = []Capability{
	CapManageEstablishment,
	CapManageDonations,
	CapManageCalls,
	CapManageAnimals,
	CapManageDocuments,
	CapManageOutings,
	CapManagePublications,
}

func (c Capability) Valid() bool {
	for _, k := range Capabilities {
		if k == c {
			return true
		}
	}
	return false
}

type CapabilitySet map[Capability]struct{}

func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := CapabilitySet{}
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

func (s CapabilitySet) Has(c Capability) bool {
	if _, ok := s[CapabilityAll]; ok {
		return true
	}
	_, ok := s[c]
	return ok
}

// List expands CapabilityAll and returns a sorted list.
func (s CapabilitySet) List() []Capability {
	out := []Capability{}
	for _, c := range Capabilities {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Group is a tenant-scoped permission group. A membership belongs to zero or more groups.
type Group struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	Name     string `json:"name" db:"name"`

	// IsAdmin marks the administrator system group. Admin status never depends on Name.
	IsAdmin bool `json:"is_admin" db:"is_admin"`

	Capabilities CapabilitySet `json:"capabilities"`
}

// Effective returns the group's own set; admin groups yield CapabilityAll.
func (g Group) Effective() CapabilitySet {
	if g.IsAdmin {
		return NewCapabilitySet(CapabilityAll)
	}
	out := CapabilitySet{}
	for c := range g.Capabilities {
		out[c] = struct{}{}
	}
	return out
}

// EffectiveCapabilities is the OR-union over groups.
func EffectiveCapabilities(groups []Group) CapabilitySet {
	out := CapabilitySet{}
	for _, g := range groups {
		for c := range g.Effective() {
			out[c] = struct{}{}
		}
	}
	return out
}

// Membership links a user to a tenant.
type Membership struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
