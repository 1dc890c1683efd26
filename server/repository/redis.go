package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hazavi/yumekai-sub000/server/store"
)

const defaultKeyPrefix = "yumekai:"

// RedisRepository keeps the same records as Repository in one redis hash.
type RedisRepository struct {
	client    *redis.Client
	keyPrefix string
	timeout   time.Duration
}

func NewRedisRepository(client *redis.Client, keyPrefix string) *RedisRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisRepository")
	}
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisRepository{
		client:    client,
		keyPrefix: keyPrefix,
		timeout:   3 * time.Second,
	}
}

var _ store.BatchPersister = (*RedisRepository)(nil)

func (r *RedisRepository) recordsKey() string {
	return r.keyPrefix + "records"
}

func (r *RedisRepository) SaveRecord(key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.HSet(ctx, r.recordsKey(), key, value).Err(); err != nil {
		return fmt.Errorf("redis: failed to save record %s: %w", key, err)
	}
	return nil
}

func (r *RedisRepository) DeleteRecord(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.HDel(ctx, r.recordsKey(), key).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete record %s: %w", key, err)
	}
	return nil
}

// ApplyRecords saves and deletes (nil value) records in one MULTI/EXEC.
func (r *RedisRepository) ApplyRecords(records map[string][]byte) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range records {
			if value == nil {
				pipe.HDel(ctx, r.recordsKey(), key)
				continue
			}
			pipe.HSet(ctx, r.recordsKey(), key, value)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to apply %d records: %w", len(records), err)
	}
	return nil
}

func (r *RedisRepository) GetRecord(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	value, err := r.client.HGet(ctx, r.recordsKey(), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis: failed to get record %s: %w", key, err)
	}
	return value, nil
}

func (r *RedisRepository) LoadRecords() (map[string][]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	all, err := r.client.HGetAll(ctx, r.recordsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to load records from %s: %w", r.recordsKey(), err)
	}
	records := make(map[string][]byte, len(all))
	for k, v := range all {
		records[k] = []byte(v)
	}
	return records, nil
}
