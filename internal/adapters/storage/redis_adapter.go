package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/urgentcareq/backend/internal/domain/entities"
	"github.com/urgentcareq/backend/internal/domain/repositories"
	redisclient "github.com/urgentcareq/backend/internal/infrastructure/clients/redis"
	apperrors "github.com/urgentcareq/backend/pkg/errors"
)

const queueKeyPrefix = "urgentcareq:queue:"

// RedisQueueStore persists the queue as one JSON value per clinic queue.
// Conditional updates run under WATCH so a concurrent writer aborts the
// transaction instead of being silently overwritten.
type RedisQueueStore struct {
	client *redisclient.Client
}

// NewRedisQueueStore creates a new Redis-backed queue store
func NewRedisQueueStore(client *redisclient.Client) repositories.QueueRepository {
	return &RedisQueueStore{client: client}
}

func queueKey(queueID string) string {
	return queueKeyPrefix + queueID
}

// Get retrieves the queue document, or (nil, nil) when absent
func (s *RedisQueueStore) Get(ctx context.Context, queueID string) (*entities.QueueDocument, error) {
	data, err := s.client.Client().Get(ctx, queueKey(queueID)).Bytes()
	if errors.Is(err, redis.Nil) {
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
func (s *RedisQueueStore) Put(ctx context.Context, doc *entities.QueueDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return apperrors.NewInternalError("failed to encode queue document", err)
	}
	if err := s.client.Client().Set(ctx, queueKey(doc.QueueID), data, 0).Err(); err != nil {
		return apperrors.NewUnavailableError("failed to write queue document", err)
	}
	return nil
}

// Update replaces the document only when the stored version still matches
func (s *RedisQueueStore) Update(ctx context.Context, doc *entities.QueueDocument) error {
	key := queueKey(doc.QueueID)

	err := s.client.Client().Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return apperrors.NewConflictError("queue document disappeared during update")
		}
		if err != nil {
			return apperrors.NewUnavailableError("failed to read queue document", err)
		}

		stored := &entities.QueueDocument{}
		if err := json.Unmarshal(data, stored); err != nil {
			return apperrors.NewInternalError("failed to decode queue document", err)
		}
		if stored.Version != doc.Version {
			return apperrors.NewConflictError(
				fmt.Sprintf("queue document at version %d, expected %d", stored.Version, doc.Version),
			)
		}

		doc.Version++
		updated, err := json.Marshal(doc)
		if err != nil {
			doc.Version--
			return apperrors.NewInternalError("failed to encode queue document", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		doc.Version--
		return apperrors.NewConflictError("queue document modified by a concurrent writer")
	}
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperrors.NewUnavailableError("failed to update queue document", err)
	}
	return nil
}
