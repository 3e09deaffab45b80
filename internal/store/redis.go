package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"call-transcriber-go/internal/types"
)

// DefaultPrefix namespaces cached transcripts in a shared redis.
const DefaultPrefix = "calltx:result:"

// Redis stores envelopes as JSON strings with a TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Dial connects to addr and verifies the server answers PING.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  800 * time.Millisecond,
		WriteTimeout: 800 * time.Millisecond,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis PING %s: %w", addr, err)
	}
	return NewRedis(client, DefaultPrefix, ttl), nil
}

func (r *Redis) Get(ctx context.Context, jobKey string) (types.JobResult, error) {
	raw, err := r.client.Get(ctx, r.prefix+jobKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.JobResult{}, ErrNotFound
	}
	if err != nil {
		return types.JobResult{}, fmt.Errorf("redis GET %s: %w", r.prefix+jobKey, err)
	}
	var res types.JobResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return types.JobResult{}, fmt.Errorf("decode cached result: %w", err)
	}
	return res, nil
}

func (r *Redis) Put(ctx context.Context, res types.JobResult) error {
	if res.JobKey == "" {
		return errors.New("job key is required")
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+res.JobKey, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", r.prefix+res.JobKey, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
