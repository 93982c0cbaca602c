package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
)

const keyPrefix = "farmvibes:cache:"

// RedisConfig configures the shared result cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long cached artifact sets live; zero means no expiry.
	TTL time.Duration
}

// RedisStore is a Store backed by redis, letting multiple engine
// instances share one result cache. Entries are JSON-encoded artifact
// sets written with a single SET, so readers never observe torn values.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "connect to redis")
	}
	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

func (s *RedisStore) Get(ctx context.Context, fingerprint string) (models.ArtifactSet, bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+fingerprint).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "cache get")
	}
	var outputs models.ArtifactSet
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, false, errors.Wrapf(err, "decode cache entry %s", fingerprint)
	}
	return outputs, true, nil
}

func (s *RedisStore) Put(ctx context.Context, fingerprint string, outputs models.ArtifactSet) error {
	data, err := json.Marshal(outputs)
	if err != nil {
		return errors.Wrapf(err, "encode cache entry %s", fingerprint)
	}
	if err := s.client.Set(ctx, keyPrefix+fingerprint, data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "cache put")
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
