package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
)

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the hash key. Defaults to "trellis".
	Prefix string
}

// Redis stores every plugin's values as a field of one hash.
type Redis struct {
	client *redis.Client
	key    string
	log    *logging.Logger
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions, log *logging.Logger) (*Redis, error) {
	if opts.Addr == "" {
		return nil, fault.New(fault.KindInvalidArgument, "redis storage requires an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	r := NewRedisWithClient(client, opts.Prefix, log)
	r.log.Info().Str("addr", opts.Addr).Str("key", r.key).Msg("redis storage opened")
	return r, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, log *logging.Logger) *Redis {
	if prefix == "" {
		prefix = "trellis"
	}
	return &Redis{client: client, key: prefix + ":configs", log: log.Sub("storage")}
}

func (r *Redis) Save(ctx context.Context, name string, values map[string]any) error {
	if err := checkName(name); err != nil {
		return err
	}
	data, err := encodeJSON(name, values)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.key, name, data).Err(); err != nil {
		return storageErr(err, "save", name)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, name string) (map[string]any, error) {
	data, err := r.client.HGet(ctx, r.key, name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "load", name)
	}
	return decodeJSON(name, data)
}

func (r *Redis) Delete(ctx context.Context, name string) error {
	if err := r.client.HDel(ctx, r.key, name).Err(); err != nil {
		return storageErr(err, "delete", name)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return storageErr(err, "clear", r.key)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
