// Package redis stores upload sessions in Redis, each key expiring together
// with its session.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitrise-io/go-resumable-upload/sessionstore"
	"github.com/bitrise-io/go-resumable-upload/upload"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix ...
const DefaultKeyPrefix = "upload:session:"

// Config contains configuration options for the Redis store
type Config struct {
	// Client is the Redis client instance
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys
	// Default: "upload:session:"
	KeyPrefix string
}

// Store implements sessionstore.Store on Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

var _ sessionstore.Store = (*Store)(nil)

// New creates a new Redis-based session store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}

	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
		now:       time.Now,
	}, nil
}

// Save ...
func (s *Store) Save(ctx context.Context, key string, session *upload.UploadSession) error {
	redisKey := s.keyPrefix + key

	ttl := sessionstore.TTL(session, s.now())
	if ttl <= 0 {
		if err := s.client.Del(ctx, redisKey).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", redisKey, err)
		}
		return fmt.Errorf("save %s: %w", key, upload.ErrSessionExpired)
	}

	data, err := sonic.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, redisKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", redisKey, err)
	}
	return nil
}

// Load ...
func (s *Store) Load(ctx context.Context, key string) (*upload.UploadSession, error) {
	redisKey := s.keyPrefix + key

	data, err := s.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessionstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key %s: %w", redisKey, err)
	}

	var session upload.UploadSession
	if err := sonic.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// Delete ...
func (s *Store) Delete(ctx context.Context, key string) error {
	redisKey := s.keyPrefix + key
	if err := s.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", redisKey, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
