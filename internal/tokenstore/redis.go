package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "flux:refresh:"

// Redis stores refresh tokens as expiring keys so every replica sees the
// same revocations.
type Redis struct {
	rdb *redis.Client
}

// NewRedis parses url, connects and pings within pingTimeout.
func NewRedis(ctx context.Context, url string, pingTimeout time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Save stores subject under id with ttl as the key expiry.
func (r *Redis) Save(ctx context.Context, id, subject string, ttl time.Duration) error {
	return r.rdb.Set(ctx, keyPrefix+id, subject, ttl).Err()
}

// Lookup reads the subject of id without consuming it.
func (r *Redis) Lookup(ctx context.Context, id string) (string, error) {
	return subjectOf(r.rdb.Get(ctx, keyPrefix+id))
}

// Consume reads and deletes id with a single GETDEL.
func (r *Redis) Consume(ctx context.Context, id string) (string, error) {
	return subjectOf(r.rdb.GetDel(ctx, keyPrefix+id))
}

func subjectOf(cmd *redis.StringCmd) (string, error) {
	subject, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return subject, nil
}

// Revoke deletes id. Unknown ids are ignored.
func (r *Redis) Revoke(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, keyPrefix+id).Err()
}

// Close releases the client connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
