package calls

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrInvalidRecord = errors.New("calls: invalid record")
	ErrNotFound      = errors.New("calls: not found")
)

// Store is the single write path for call records.
//
// UpsertCalls is keyed on (tenant, provider call id). On conflict every column is
// overwritten by the incoming record. There is no transaction across the batch:
// on error the returned count says how many records were already written.
type Store interface {
	UpsertCalls(ctx context.Context, tenantID string, records []CallRecord) (int, error)
	ListCalls(ctx context.Context, tenantID string, filter ListFilter) ([]CallRecord, error)
	GetCall(ctx context.Context, tenantID, providerCallID string) (CallRecord, error)
	UpdateNotes(ctx context.Context, tenantID, providerCallID, notes string, tags []string) error
}

// ListFilter narrows ListCalls. Zero values mean "no filter".
type ListFilter struct {
	CallbackNeeded *bool
	Since          time.Time
	Until          time.Time
	Limit          int
}

const defaultListLimit = 100

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return defaultListLimit
	}
	return f.Limit
}

func (f ListFilter) match(r CallRecord) bool {
	if f.CallbackNeeded != nil && r.CallbackNeeded != *f.CallbackNeeded {
		return false
	}
	if !f.Since.IsZero() && (r.StartTime == nil || r.StartTime.Before(f.Since)) {
		return false
	}
	if !f.Until.IsZero() && (r.StartTime == nil || !r.StartTime.Before(f.Until)) {
		return false
	}
	return true
}

func validateBatch(tenantID string, records []CallRecord) error {
	if tenantID == "" {
		return ErrInvalidRecord
	}
	for _, r := range records {
		if r.ProviderCallID == "" {
			return ErrInvalidRecord
		}
	}
	return nil
}

// MemoryStore is an in-memory Store with the same upsert semantics as PostgresStore.
// Useful for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]CallRecord
	writes  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]CallRecord{}}
}

func memoryKey(tenantID, providerCallID string) string {
	return tenantID + "|" + providerCallID
}

func (s *MemoryStore) UpsertCalls(ctx context.Context, tenantID string, records []CallRecord) (int, error) {
	if err := validateBatch(tenantID, records); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.TenantID = tenantID
		s.records[memoryKey(tenantID, r.ProviderCallID)] = r
		s.writes++
	}
	return len(records), nil
}

func (s *MemoryStore) ListCalls(ctx context.Context, tenantID string, filter ListFilter) ([]CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []CallRecord{}
	for _, r := range s.records {
		if r.TenantID == tenantID && filter.match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].StartTime, out[j].StartTime
		switch {
		case ti == nil && tj == nil:
			return out[i].ProviderCallID < out[j].ProviderCallID
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	if n := filter.limit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *MemoryStore) GetCall(ctx context.Context, tenantID, providerCallID string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[memoryKey(tenantID, providerCallID)]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) UpdateNotes(ctx context.Context, tenantID, providerCallID, notes string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memoryKey(tenantID, providerCallID)
	r, ok := s.records[k]
	if !ok {
		return ErrNotFound
	}
	r.Notes = notes
	if tags != nil {
		r.Tags = tags
	}
	s.records[k] = r
	return nil
}

// Len returns the number of distinct stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Writes returns the number of record writes accepted, including overwrites.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
