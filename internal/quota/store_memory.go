package quota

import (
	"context"
	"sync"
	"time"

	id "verifyd/pkg/domain"
	"verifyd/pkg/platform/sentinel"
)

// InMemoryStore keeps usage records in a mutex-guarded map. Suitable for
// tests and single-process deployments without durability requirements.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.Identity]*UsageRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.Identity]*UsageRecord)}
}

func (s *InMemoryStore) Get(_ context.Context, identity id.Identity) (*UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[identity]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) Ensure(_ context.Context, identity id.Identity) (*UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.ensureLocked(identity)
	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) Increment(_ context.Context, identity id.Identity) (*UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.ensureLocked(identity)
	record.UploadsUsed++
	record.UpdatedAt = time.Now().UTC()
	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) SetSubscribed(_ context.Context, identity id.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.ensureLocked(identity)
	record.Subscribed = true
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) ensureLocked(identity id.Identity) *UsageRecord {
	if record, ok := s.records[identity]; ok {
		return record
	}
	now := time.Now().UTC()
	record := &UsageRecord{Identity: identity, CreatedAt: now, UpdatedAt: now}
	s.records[identity] = record
	return record
}
