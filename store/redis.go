package store

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	rerrors "github.com/vinayprograms/taskrunner/errors"
)

var _ Store = (*Redis)(nil)

// RedisConfig holds connection settings for NewRedis.
type RedisConfig struct {
	// Addr is host:port of the Redis server.
	Addr string

	Password string
	DB       int
}

// DefaultBlockTimeout bounds each server-side BLPOP so cancellation is noticed.
const DefaultBlockTimeout = time.Second

// Redis implements Store on a Redis server.
type Redis struct {
	client goredis.UniversalClient
	owned  bool

	// blockTimeout is the per-round BLPOP timeout. Redis counts it in whole
	// seconds.
	blockTimeout time.Duration
}

// NewRedis connects to Redis and owns the resulting client: Close closes it.
func NewRedis(cfg RedisConfig) *Redis {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		// Lets context deadlines interrupt blocking pops.
		ContextTimeoutEnabled: true,
	})
	return &Redis{client: client, owned: true, blockTimeout: DefaultBlockTimeout}
}

// NewRedisFromClient wraps an existing client. The caller owns its lifecycle.
func NewRedisFromClient(client goredis.UniversalClient) *Redis {
	return &Redis{client: client, blockTimeout: DefaultBlockTimeout}
}

// Client returns the underlying Redis client.
func (s *Redis) Client() goredis.UniversalClient { return s.client }

// wrap converts client errors into runner errors.
func wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, goredis.Nil) {
		return rerrors.NotFound("store: " + op + ": key not found")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return rerrors.Wrap(err, "store: "+op)
	}
	return rerrors.WrapWithCode(err, rerrors.ErrCodeUnavailable, "store: "+op)
}

// SAdd adds member to the set at key.
func (s *Redis) SAdd(ctx context.Context, key, member string) error {
	return wrap(s.client.SAdd(ctx, key, member).Err(), "sadd")
}

// SRem removes member from the set at key.
func (s *Redis) SRem(ctx context.Context, key, member string) error {
	return wrap(s.client.SRem(ctx, key, member).Err(), "srem")
}

// SIsMember reports whether member is in the set at key.
func (s *Redis) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, key, member).Result()
	return ok, wrap(err, "sismember")
}

// SMembers returns all members of the set at key.
func (s *Redis) SMembers(ctx context.Context, key string) ([]string, error) {
	m, err := s.client.SMembers(ctx, key).Result()
	return m, wrap(err, "smembers")
}

// BLPop pops from the first non-empty key, in priority order. It waits until
// an item arrives or ctx ends. The wait is issued as repeated bounded BLPOPs
// because the client does not abort a blocked command on cancellation alone.
func (s *Redis) BLPop(ctx context.Context, keys ...string) (string, string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", "", wrap(err, "blpop")
		}
		res, err := s.client.BLPop(ctx, s.blockTimeout, keys...).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", "", wrap(ctx.Err(), "blpop")
			}
			return "", "", wrap(err, "blpop")
		}
		if len(res) != 2 {
			return "", "", rerrors.Internal("store: blpop: unexpected reply length")
		}
		return res[0], res[1], nil
	}
}

// RPush appends values to the list at key.
func (s *Redis) RPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return wrap(s.client.RPush(ctx, key, args...).Err(), "rpush")
}

// Set stores value at key with an optional ttl.
func (s *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrap(s.client.Set(ctx, key, value, ttl).Err(), "set")
}

// Get returns the value at key.
func (s *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	return v, wrap(err, "get")
}

// Ping verifies the Redis connection is alive.
func (s *Redis) Ping(ctx context.Context) error {
	return wrap(s.client.Ping(ctx).Err(), "ping")
}

// Close closes the client when this store created it.
func (s *Redis) Close() error {
	if !s.owned {
		return nil
	}
	return wrap(s.client.Close(), "close")
}
