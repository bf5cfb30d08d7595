package audit

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only: there is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	// ListByTenant returns the tenant's events newest first.
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]Event, error)
}

// Actor identifies who performed an action.
type Actor struct {
	UserID string
	IP     string
}

// Service records operator actions. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	if tenantID == "" {
		return nil, ErrInvalidEvent
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListByTenant(ctx, tenantID, limit)
}

// LogConnectionConfigured records a new active connection. Only the line numbers are kept.
func (s *Service) LogConnectionConfigured(ctx context.Context, tenantID, connectionID string, actor Actor, receptionNumber, onCallNumber string) error {
	return s.Append(ctx, Event{
		TenantID:     tenantID,
		Type:         EventTypeConnectionConfigured,
		ActorUserID:  actor.UserID,
		IPAddress:    actor.IP,
		ConnectionID: connectionID,
		Message:      "telephony connection configured",
		Metadata: metadata(map[string]string{
			"reception_number": receptionNumber,
			"on_call_number":   onCallNumber,
		}),
	})
}

func (s *Service) LogConnectionDeactivated(ctx context.Context, tenantID string, actor Actor) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeConnectionDeactivated,
		ActorUserID: actor.UserID,
		IPAddress:   actor.IP,
		Message:     "telephony connection deactivated",
	})
}

func (s *Service) LogCallAnnotated(ctx context.Context, tenantID, callID string, actor Actor, tags []string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeCallAnnotated,
		ActorUserID: actor.UserID,
		IPAddress:   actor.IP,
		CallID:      callID,
		Message:     "call notes updated",
		Metadata:    metadata(map[string]any{"tags": tags}),
	})
}

func metadata(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
