package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"rag-document-platform/models"
)

const progressKeyPrefix = "progress:doc:"

// RedisProgressStore keeps one hash per document, expiring after ttl so
// abandoned runs do not linger.
type RedisProgressStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisProgressStore(rdb *redis.Client, ttl time.Duration) *RedisProgressStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisProgressStore{rdb: rdb, ttl: ttl}
}

func progressKey(documentID string) string {
	return progressKeyPrefix + documentID
}

func (s *RedisProgressStore) Report(ctx context.Context, record models.ProgressRecord) error {
	key := progressKey(record.DocumentID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"stage":      record.Stage,
			"percent":    record.Percent,
			"updated_at": record.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write progress for %s: %w", record.DocumentID, err)
	}
	return nil
}

func (s *RedisProgressStore) Get(ctx context.Context, documentID string) (*models.ProgressRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, progressKey(documentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read progress for %s: %w", documentID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	percent, err := strconv.Atoi(fields["percent"])
	if err != nil {
		return nil, fmt.Errorf("corrupt progress percent for %s: %w", documentID, err)
	}
	record := &models.ProgressRecord{
		DocumentID: documentID,
		Stage:      fields["stage"],
		Percent:    percent,
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		record.UpdatedAt = ts
	}
	return record, nil
}

func (s *RedisProgressStore) Clear(ctx context.Context, documentID string) error {
	if err := s.rdb.Del(ctx, progressKey(documentID)).Err(); err != nil {
		return fmt.Errorf("failed to clear progress for %s: %w", documentID, err)
	}
	return nil
}
