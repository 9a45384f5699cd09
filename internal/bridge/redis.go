package bridge

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
)

// RedisSink publishes events with PUBLISH.
type RedisSink struct {
	client *redis.Client
	log    *logging.Logger
}

// NewRedisSink connects to the redis server at url (redis://host:port/db).
func NewRedisSink(ctx context.Context, url string, log *logging.Logger) (*RedisSink, error) {
	if url == "" {
		return nil, fault.New(fault.KindInvalidArgument, "redis bridge requires a url")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidArgument, err, "parsing redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	s := NewRedisSinkWithClient(client, log)
	s.log.Info().Str("addr", opts.Addr).Msg("redis bridge connected")
	return s, nil
}

// NewRedisSinkWithClient wraps an existing client.
func NewRedisSinkWithClient(client *redis.Client, log *logging.Logger) *RedisSink {
	return &RedisSink{client: client, log: log.Sub("bridge")}
}

func (s *RedisSink) Publish(ctx context.Context, topic string, payload []byte) error {
	return s.client.Publish(ctx, topic, payload).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
