package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "unm"

// RedisStore is a Directory backed by Redis with a TTL read cache in front.
//
// Link uses SETNX so that two concurrent registrations racing for the same
// username resolve to exactly one winner; the loser observes ErrTaken.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	cache  *ttlcache.Cache[string, string]
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the Redis key prefix for username mappings.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore creates a username directory on the given Redis client.
// cacheTTL bounds how long a resolved mapping may be served without a
// round trip; zero disables the cache.
func NewRedisStore(redisClient *redis.Client, cacheTTL time.Duration, opts ...RedisStoreOption) (*RedisStore, error) {
	if redisClient == nil {
		return nil, errors.New("directory: nil redis client")
	}

	s := &RedisStore{
		redis:  redisClient,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cacheTTL > 0 {
		s.cache = ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](cacheTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		)
		go s.cache.Start()
	}

	return s, nil
}

// Close stops the cache janitor. The Redis client is owned by the caller.
func (s *RedisStore) Close() {
	if s.cache != nil {
		s.cache.Stop()
	}
}

func (s *RedisStore) key(username string) string {
	return s.prefix + ":" + username
}

// Lookup resolves a username to its canonical email.
func (s *RedisStore) Lookup(ctx context.Context, username string) (string, error) {
	if s.cache != nil {
		if item := s.cache.Get(username); item != nil {
			return item.Value(), nil
		}
	}

	email, err := s.redis.Get(ctx, s.key(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if s.cache != nil {
		s.cache.Set(username, email, ttlcache.DefaultTTL)
	}
	return email, nil
}

// Link records a username alias for an email. First writer wins; a second
// Link for the same username is accepted only when it names the same email,
// so retried registrations stay idempotent.
func (s *RedisStore) Link(ctx context.Context, username, email string) error {
	set, err := s.redis.SetNX(ctx, s.key(username), email, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if set {
		return nil
	}

	existing, err := s.redis.Get(ctx, s.key(username)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if existing == email {
		return nil
	}
	return ErrTaken
}
