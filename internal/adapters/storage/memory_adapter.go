package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/urgentcareq/backend/internal/domain/entities"
	"github.com/urgentcareq/backend/internal/domain/repositories"
	apperrors "github.com/urgentcareq/backend/pkg/errors"
)

// MemoryQueueStore keeps queue documents in process memory. It backs tests
// and single-node development runs; state is lost on restart.
type MemoryQueueStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryQueueStore creates a new in-memory queue store
func NewMemoryQueueStore() repositories.QueueRepository {
	return &MemoryQueueStore{docs: make(map[string][]byte)}
}

// Get retrieves the queue document, or (nil, nil) when absent
func (s *MemoryQueueStore) Get(ctx context.Context, queueID string) (*entities.QueueDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.docs[queueID]
	if !ok {
		return nil, nil
	}

	doc := &entities.QueueDocument{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, apperrors.NewInternalError("failed to decode queue document", err)
	}
	return doc, nil
}

// Put unconditionally replaces the queue document
func (s *MemoryQueueStore) Put(ctx context.Context, doc *entities.QueueDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return apperrors.NewInternalError("failed to encode queue document", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.QueueID] = data
	return nil
}

// Update replaces the document only when the stored version still matches
func (s *MemoryQueueStore) Update(ctx context.Context, doc *entities.QueueDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.docs[doc.QueueID]
	if !ok {
		return apperrors.NewConflictError("queue document disappeared during update")
	}

	stored := &entities.QueueDocument{}
	if err := json.Unmarshal(data, stored); err != nil {
		return apperrors.NewInternalError("failed to decode queue document", err)
	}
	if stored.Version != doc.Version {
		return apperrors.NewConflictError("queue document modified by a concurrent writer")
	}

	doc.Version++
	updated, err := json.Marshal(doc)
	if err != nil {
		doc.Version--
		return apperrors.NewInternalError("failed to encode queue document", err)
	}
	s.docs[doc.QueueID] = updated
	return nil
}
