package certificate

import (
	"context"
	"sync"
	"time"

	id "verifyd/pkg/domain"
	"verifyd/pkg/platform/sentinel"
)

// InMemoryStore keeps certificate records in a mutex-guarded map.
// Suitable for tests and single-process deployments without durability
// requirements.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.CertificateID]*Certificate
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.CertificateID]*Certificate)}
}

func (s *InMemoryStore) Create(_ context.Context, cert *Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[cert.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *cert
	s.records[cert.ID] = &copied
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, certID id.CertificateID) (*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[certID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) Certify(_ context.Context, certID id.CertificateID, ref id.ArtifactRef, certifiedAt time.Time) (*Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[certID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if record.Status == StatusCertified {
		return nil, sentinel.ErrInvalidState
	}

	record.Status = StatusCertified
	record.ArtifactRef = ref
	record.CertifiedAt = &certifiedAt

	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) Delete(_ context.Context, certID id.CertificateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[certID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, certID)
	return nil
}
