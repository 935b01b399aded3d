package resilience

import (
	"context"
	"sync"

	"pmsbridge/internal/domain"
)

// MemStore is an in-process CircuitStore for tests and single-instance
// deployments. Multi-instance deployments use the redis-backed store so
// all instances share one circuit.
type MemStore struct {
	mu   sync.Mutex
	recs map[string]domain.CircuitRecord
}

func NewMemStore() *MemStore {
	return &MemStore{recs: make(map[string]domain.CircuitRecord)}
}

func memKey(vendor string, class domain.OpClass) string {
	return vendor + "/" + string(class)
}

func (s *MemStore) Get(_ context.Context, vendor string, class domain.OpClass) (domain.CircuitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs[memKey(vendor, class)], nil
}

func (s *MemStore) Update(_ context.Context, vendor string, class domain.OpClass, prev, next domain.CircuitRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(vendor, class)
	if s.recs[k].Version != prev.Version {
		return false, nil
	}
	s.recs[k] = next
	return true, nil
}

var _ domain.CircuitStore = (*MemStore)(nil)
