// Package bridge forwards event bus traffic to an external broker so other
// processes can observe plugin and config activity.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/soyeahso/trellis/internal/eventbus"
	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
)

// Backend names accepted by Open.
const (
	BackendNone  = "none"
	BackendRedis = "redis"
	BackendAMQP  = "amqp"
)

// Backends returns the accepted backend names.
func Backends() []string {
	return []string{BackendNone, BackendRedis, BackendAMQP}
}

// Sink publishes an encoded event under a topic.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Options configures Open.
type Options struct {
	Backend string
	URL     string
	// Exchange is the AMQP topic exchange. Ignored by redis.
	Exchange string
}

// Open connects the sink for opts.Backend. It returns nil, nil for "none".
func Open(ctx context.Context, opts Options, log *logging.Logger) (Sink, error) {
	switch opts.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendRedis:
		s, err := NewRedisSink(ctx, opts.URL, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendAMQP:
		s, err := NewAMQPSink(opts.URL, opts.Exchange, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fault.New(fault.KindUnsupported, "unknown bridge backend: "+opts.Backend,
			fault.WithSubject(opts.Backend))
	}
}

// Topic is the broker topic for a bus channel.
func Topic(prefix, channel string) string {
	if prefix == "" {
		return channel
	}
	return prefix + "." + channel
}

// Forwarder subscribes to bus channels and republishes every event to a sink.
type Forwarder struct {
	bus    *eventbus.Bus
	sink   Sink
	prefix string
	log    *logging.Logger

	mu   sync.Mutex
	subs []string
}

// NewForwarder creates a forwarder. Call Start to begin forwarding.
func NewForwarder(bus *eventbus.Bus, sink Sink, prefix string, log *logging.Logger) *Forwarder {
	return &Forwarder{
		bus:    bus,
		sink:   sink,
		prefix: prefix,
		log:    log.Sub("bridge"),
	}
}

// Start subscribes to channels. On error no subscription is left behind.
func (f *Forwarder) Start(channels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var subs []string
	for _, ch := range channels {
		topic := Topic(f.prefix, ch)
		id, err := f.bus.Subscribe(ch, func(ctx context.Context, ev eventbus.Event) error {
			return f.forward(ctx, topic, ev)
		})
		if err != nil {
			for _, s := range subs {
				f.bus.Unsubscribe(s)
			}
			return fmt.Errorf("bridge channel %s: %w", ch, err)
		}
		subs = append(subs, id)
		f.log.Info().Str("channel", ch).Str("topic", topic).Msg("forwarding channel")
	}
	f.subs = append(f.subs, subs...)
	return nil
}

// Stop unsubscribes from every channel.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.subs {
		f.bus.Unsubscribe(id)
	}
	f.subs = nil
}

// Close stops forwarding and closes the sink.
func (f *Forwarder) Close() error {
	f.Stop()
	return f.sink.Close()
}

// forward returns sink errors so the bus retries delivery.
func (f *Forwarder) forward(ctx context.Context, topic string, ev eventbus.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", ev.ID, err)
	}
	if err := f.sink.Publish(ctx, topic, payload); err != nil {
		f.log.Debug().Err(err).Str("topic", topic).Str("type", ev.Type).Msg("publish failed")
		return err
	}
	f.log.Trace().Str("topic", topic).Str("type", ev.Type).Msg("event forwarded")
	return nil
}
