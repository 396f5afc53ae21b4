package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is the session key schema root. Full keys look like
// honeypot:session:{sessionId}; the callback claim lives beside the session
// at honeypot:session:{sessionId}:cb with the same TTL.
const DefaultKeyPrefix = "honeypot:session:"

// RedisStore is the remote durable tier. It speaks raw serialized sessions;
// encoding and the fallback policy live in LayeredStore.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOptions configures the remote tier connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects a remote tier client. Connection failures surface
// per-operation, not here: the layered store treats every error as a
// degradation signal, so a dead backend at startup is not fatal.
func NewRedisStore(opts RedisOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:         opts.Addr,
			Password:     opts.Password,
			DB:           opts.DB,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		}),
		prefix: opts.Prefix,
	}
}

func (r *RedisStore) key(id string) string      { return r.prefix + id }
func (r *RedisStore) claimKey(id string) string { return r.prefix + id + ":cb" }

// Load returns the raw session record, nil on miss.
func (r *RedisStore) Load(ctx context.Context, id string) ([]byte, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Save writes the record with an absolute TTL, refreshed on every write.
func (r *RedisStore) Save(ctx context.Context, id string, raw []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(id), raw, ttl).Err()
}

// TryClaim is the atomic claim primitive: SETNX on the claim key. The first
// caller wins; everyone else sees false until the key expires with the
// session.
func (r *RedisStore) TryClaim(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.claimKey(id), "1", ttl).Result()
}

// Delete removes the session and its claim.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id), r.claimKey(id)).Err()
}

// Ping probes connectivity, for health reporting.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client's connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
