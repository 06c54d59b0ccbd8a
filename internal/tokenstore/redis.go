package tokenstore

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"
)

// DefaultRedisPrefix namespaces token keys in a shared Redis database.
const DefaultRedisPrefix = "kakao-go:"

// RedisOptions contains configuration for the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisCache is a token.Cache stored in Redis via rueidis. Entries do not
// expire in Redis; token expiry is tracked in the values themselves.
type RedisCache struct {
	client rueidis.Client
	prefix string
}

// NewRedisCache wraps an existing rueidis client.
func NewRedisCache(client rueidis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// OpenRedis connects to Redis with opts.
func OpenRedis(opts RedisOptions) (*RedisCache, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{opts.Addr},
		Password:     opts.Password,
		SelectDB:     opts.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("tokenstore: connecting to redis at %s: %w", opts.Addr, err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	return NewRedisCache(client, prefix), nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	cmd := r.client.B().Get().Key(r.prefix + key).Build()

	v, err := r.client.Do(ctx, cmd).ToString()
	if rueidis.IsRedisNil(err) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("tokenstore: redis GET %s: %w", key, err)
	}

	return v, true, nil
}

// Save writes all entries in a single MULTI/EXEC block.
func (r *RedisCache) Save(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	cmds := make(rueidis.Commands, 0, len(entries)+2)
	cmds = append(cmds, r.client.B().Multi().Build())

	for k, v := range entries {
		cmds = append(cmds, r.client.B().Set().Key(r.prefix+k).Value(v).Build())
	}

	cmds = append(cmds, r.client.B().Exec().Build())

	for _, res := range r.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("tokenstore: redis save: %w", err)
		}
	}

	return nil
}

func (r *RedisCache) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}

	if err := r.client.Do(ctx, r.client.B().Del().Key(full...).Build()).Error(); err != nil {
		return fmt.Errorf("tokenstore: redis DEL: %w", err)
	}

	return nil
}

// Ping checks connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Do(ctx, r.client.B().Ping().Build()).Error()
}

func (r *RedisCache) Close() error {
	r.client.Close()
	return nil
}
