package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"shelter-platform/internal/calls"
)

// MemoryRepo is an in-memory reporting repository for tests.
// It enforces tenant isolation on reads.
type MemoryRepo struct {
	mu    sync.Mutex
	Calls []calls.CallRecord
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(ctx context.Context, tenantID string, from, to time.Time) ([]calls.CallRecord, error) {
	if tenantID == "" {
		return nil, errors.New("tenant_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.CallRecord, 0)
	for _, c := range r.Calls {
		if c.TenantID != tenantID || c.StartTime == nil {
			continue
		}
		if c.StartTime.Before(from) || !c.StartTime.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
