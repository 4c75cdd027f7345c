package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/labledger/api/internal/model"
)

// DefaultTTL bounds how long finished job records stay readable.
const DefaultTTL = 24 * time.Hour

// RedisStore keeps job records as JSON values under job:<id>.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a job store backed by Redis.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient, ttl: DefaultTTL}
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

// Set persists a job record, refreshing its TTL.
func (s *RedisStore) Set(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, s.ttl).Err()
}

// Get reads a job record by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
