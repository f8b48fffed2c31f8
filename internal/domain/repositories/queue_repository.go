package repositories

import (
	"context"

	"github.com/urgentcareq/backend/internal/domain/entities"
)

// QueueRepository defines the interface for the clinic queue document store.
// The queue is persisted as a single document addressed by its queue id; all
// writes replace the whole document.
type QueueRepository interface {
	// Get retrieves the queue document. It returns (nil, nil) when no
	// document exists, which callers treat as "queue not initialized".
	Get(ctx context.Context, queueID string) (*entities.QueueDocument, error)

	// Put unconditionally replaces the queue document, creating it if
	// absent. Used by the staff reset operation.
	Put(ctx context.Context, doc *entities.QueueDocument) error

	// Update replaces the queue document only if the stored version still
	// matches doc.Version, then bumps the version. A concurrent writer
	// surfaces as a CONFLICT application error so the caller can re-read
	// and retry.
	Update(ctx context.Context, doc *entities.QueueDocument) error
}
