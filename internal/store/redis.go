package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketloop/marketloop/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore keeps reset records in Redis, keyed by identity, with the key
// TTL matching the record's expiry so Redis reaps stale records natively.
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStore(client *redis.Client, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

func (s *RedisStore) Set(ctx context.Context, rec models.ResetRecord) error {
	dataJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal reset record: %w", err)
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		// Already past expiry; keep the key around briefly so a verify
		// attempt still observes the expired branch instead of not-found.
		ttl = time.Minute
	}

	if err := s.client.Set(ctx, resetKey(rec.Identity), dataJSON, ttl).Err(); err != nil {
		s.logger.WithError(err).Error("Failed to store reset record in Redis")
		return fmt.Errorf("failed to store reset record: %w", err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, identity string) (*models.ResetRecord, error) {
	dataJSON, err := s.client.Get(ctx, resetKey(identity)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to get reset record from Redis")
		return nil, fmt.Errorf("failed to get reset record: %w", err)
	}

	var rec models.ResetRecord
	if err := json.Unmarshal([]byte(dataJSON), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reset record: %w", err)
	}

	return &rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, identity string) error {
	if err := s.client.Del(ctx, resetKey(identity)).Err(); err != nil {
		return fmt.Errorf("failed to delete reset record: %w", err)
	}
	return nil
}

func resetKey(identity string) string {
	return fmt.Sprintf("reset:%s", identity)
}
