package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/urgentcareq/backend/internal/domain/entities"
	"github.com/urgentcareq/backend/internal/domain/repositories"
	"github.com/urgentcareq/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/urgentcareq/backend/pkg/errors"
)

const queueTable = "clinic_queue"

// PostgresQueueStore persists the queue as one jsonb row per clinic queue:
//
//	CREATE TABLE clinic_queue (
//	    queue_id   TEXT PRIMARY KEY,
//	    document   JSONB NOT NULL,
//	    version    BIGINT NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//
// The version column mirrors the document's version field and guards the
// read-modify-write cycle.
type PostgresQueueStore struct {
	client *postgres.Client
	db     *goqu.Database
}

var _ repositories.QueueRepository = (*PostgresQueueStore)(nil)

// NewPostgresQueueStore creates a new PostgreSQL-backed queue store
func NewPostgresQueueStore(client *postgres.Client) *PostgresQueueStore {
	return &PostgresQueueStore{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// EnsureSchema creates the queue table if it does not exist yet
func (s *PostgresQueueStore) EnsureSchema(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + queueTable + ` (
		queue_id   TEXT PRIMARY KEY,
		document   JSONB NOT NULL,
		version    BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := s.client.DB().ExecContext(ctx, ddl); err != nil {
		return apperrors.NewUnavailableError("failed to create queue table", err)
	}
	return nil
}

// Get retrieves the queue document, or (nil, nil) when absent
func (s *PostgresQueueStore) Get(ctx context.Context, queueID string) (*entities.QueueDocument, error) {
	query, args, err := s.db.Select("document").
		From(queueTable).
		Where(goqu.Ex{"queue_id": queueID}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build queue query", err)
	}

	var data []byte
	err = s.client.DB().QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewUnavailableError("failed to read queue document", err)
	}

	doc := &entities.QueueDocument{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, apperrors.NewInternalError("failed to decode queue document", err)
	}
	return doc, nil
}

// Put unconditionally replaces the queue document
func (s *PostgresQueueStore) Put(ctx context.Context, doc *entities.QueueDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return apperrors.NewInternalError("failed to encode queue document", err)
	}

	record := goqu.Record{
		"queue_id":   doc.QueueID,
		"document":   data,
		"version":    doc.Version,
		"updated_at": time.Now(),
	}
	query, args, err := s.db.Insert(queueTable).
		Rows(record).
		OnConflict(goqu.DoUpdate("queue_id", goqu.Record{
			"document":   data,
			"version":    doc.Version,
			"updated_at": time.Now(),
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build queue upsert", err)
	}

	if _, err := s.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewUnavailableError("failed to write queue document", err)
	}
	return nil
}

// Update replaces the document only when the stored version still matches
func (s *PostgresQueueStore) Update(ctx context.Context, doc *entities.QueueDocument) error {
	previous := doc.Version
	doc.Version = previous + 1

	data, err := json.Marshal(doc)
	if err != nil {
		doc.Version = previous
		return apperrors.NewInternalError("failed to encode queue document", err)
	}

	query, args, err := s.db.Update(queueTable).
		Set(goqu.Record{
			"document":   data,
			"version":    doc.Version,
			"updated_at": time.Now(),
		}).
		Where(goqu.Ex{"queue_id": doc.QueueID, "version": previous}).
		ToSQL()
	if err != nil {
		doc.Version = previous
		return apperrors.NewInternalError("failed to build queue update", err)
	}

	result, err := s.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		doc.Version = previous
		return apperrors.NewUnavailableError("failed to update queue document", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		doc.Version = previous
		return apperrors.NewUnavailableError("failed to confirm queue update", err)
	}
	if affected == 0 {
		doc.Version = previous
		return apperrors.NewConflictError("queue document modified by a concurrent writer")
	}
	return nil
}
