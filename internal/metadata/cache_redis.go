package metadata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"readito/metadataservice/internal/domain"
)

const redisCachePrefix = "readito:metadata:"

// RedisCacheBackend stores resolved outcomes in Redis with JSON
// serialization, shared across service restarts and replicas.
type RedisCacheBackend struct {
	client *redis.Client
}

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

func (r *RedisCacheBackend) Get(ctx context.Context, key string) (domain.SearchOutcome, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.SearchOutcome{}, false, nil
		}
		return domain.SearchOutcome{}, false, err
	}
	var outcome domain.SearchOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return domain.SearchOutcome{}, false, err
	}
	return outcome, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, outcome domain.SearchOutcome, ttl time.Duration) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

func (r *RedisCacheBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisCachePrefix+key).Err()
}

func (r *RedisCacheBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
