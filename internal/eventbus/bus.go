// Package eventbus provides channel-based publish/subscribe with per-subscriber retry.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Config controls delivery retries. It is fixed for the lifetime of a Bus.
type Config struct {
	// MaxRetries is the total number of attempts per subscriber.
	MaxRetries int
	// RetryDelay is the flat wait between attempts.
	RetryDelay time.Duration
}

// DefaultConfig returns the standard retry settings.
func DefaultConfig() Config {
	return Config{MaxRetries: DefaultMaxRetries, RetryDelay: DefaultRetryDelay}
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

// Handler handles an event. Returning an error triggers a retry.
type Handler func(ctx context.Context, e Event) error

type subscription struct {
	id      string
	channel string
	handler Handler
}

// Bus delivers events to subscribers of explicitly registered channels.
type Bus struct {
	mu       sync.RWMutex
	cfg      Config
	running  bool
	channels map[string][]subscription
	order    []string // channel registration order
	log      *logging.Logger
}

// New creates a stopped bus.
func New(cfg Config, log *logging.Logger) *Bus {
	return &Bus{
		cfg:      cfg.withDefaults(),
		channels: make(map[string][]subscription),
		log:      log.Sub("eventbus"),
	}
}

// Config returns the retry settings the bus was built with.
func (b *Bus) Config() Config {
	return b.cfg
}

// Start puts the bus into the running state. Starting a running bus is a no-op.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		b.log.Debug().Msg("event bus already running")
		return
	}
	b.running = true
	b.log.Info().
		Int("maxRetries", b.cfg.MaxRetries).
		Dur("retryDelay", b.cfg.RetryDelay).
		Msg("event bus started")
}

// Stop halts the bus and drops every subscription. Channels stay registered.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	for name := range b.channels {
		b.channels[name] = nil
	}
	b.log.Info().Msg("event bus stopped")
}

// Reset stops the bus and forgets all channels.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	b.channels = make(map[string][]subscription)
	b.order = nil
}

// IsRunning reports whether the bus accepts subscriptions and events.
func (b *Bus) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// RegisterChannel adds a named channel.
func (b *Bus) RegisterChannel(name string) error {
	if name == "" {
		return fault.New(fault.KindInvalidArgument, "channel name is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.channels[name]; exists {
		return fault.New(fault.KindDuplicateRegistration,
			"channel already registered: "+name, fault.WithSubject(name))
	}
	b.channels[name] = nil
	b.order = append(b.order, name)
	b.log.Debug().Str("channel", name).Msg("channel registered")
	return nil
}

// HasChannel reports whether name has been registered.
func (b *Bus) HasChannel(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.channels[name]
	return ok
}

// Subscribe attaches handler to channel and returns the subscription id.
func (b *Bus) Subscribe(channel string, handler Handler) (string, error) {
	if handler == nil {
		return "", fault.New(fault.KindInvalidArgument, "handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return "", fault.New(fault.KindNotRunning, "event bus is not running")
	}
	if _, ok := b.channels[channel]; !ok {
		return "", unknownChannel(channel)
	}
	id := uuid.New().String()
	b.channels[channel] = append(b.channels[channel], subscription{id: id, channel: channel, handler: handler})
	b.log.Debug().Str("channel", channel).Str("subscription", id).Msg("subscribed")
	return id, nil
}

// Unsubscribe removes the subscription with the given id. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, subs := range b.channels {
		for i, s := range subs {
			if s.id != id {
				continue
			}
			filtered := make([]subscription, 0, len(subs)-1)
			filtered = append(filtered, subs[:i]...)
			filtered = append(filtered, subs[i+1:]...)
			b.channels[name] = filtered
			b.log.Debug().Str("channel", name).Str("subscription", id).Msg("unsubscribed")
			return
		}
	}
}

// SubscriptionCount returns the number of subscriptions on channel.
func (b *Bus) SubscriptionCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

// Channels returns registered channel names in registration order.
func (b *Bus) Channels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// ClearSubscriptions drops every subscription without stopping the bus.
func (b *Bus) ClearSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name := range b.channels {
		b.channels[name] = nil
	}
}

// Emit delivers e to every subscriber of its channel concurrently and waits
// for all deliveries to settle. Handler failures are retried and, once
// exhausted, logged and folded into the returned status; they are never
// returned as errors.
func (b *Bus) Emit(ctx context.Context, e Event) (DeliveryStatus, error) {
	key := e.channelKey()

	b.mu.RLock()
	if !b.running {
		b.mu.RUnlock()
		return StatusFailed, fault.New(fault.KindNotRunning, "event bus is not running")
	}
	subs, ok := b.channels[key]
	if !ok {
		b.mu.RUnlock()
		return StatusFailed, unknownChannel(key)
	}
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	b.mu.RUnlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Channel == "" {
		e.Channel = key
	}

	if len(snapshot) == 0 {
		b.log.Debug().Str("channel", key).Str("type", e.Type).Msg("no subscribers")
		return StatusSuccess, nil
	}

	results := make([]bool, len(snapshot))
	var wg sync.WaitGroup
	for i, s := range snapshot {
		wg.Add(1)
		go func(i int, s subscription) {
			defer wg.Done()
			results[i] = b.deliver(ctx, s, e)
		}(i, s)
	}
	wg.Wait()

	succeeded := 0
	for _, ok := range results {
		if ok {
			succeeded++
		}
	}
	status := classify(succeeded, len(snapshot))
	b.log.Debug().
		Str("channel", key).
		Str("type", e.Type).
		Int("subscribers", len(snapshot)).
		Int("succeeded", succeeded).
		Str("status", status.String()).
		Msg("event emitted")
	return status, nil
}

// deliver runs one subscriber's handler with retries and reports success.
func (b *Bus) deliver(ctx context.Context, s subscription, e Event) bool {
	var lastErr error
	attempts := 0
	for attempts < b.cfg.MaxRetries {
		attempts++
		lastErr = invoke(ctx, s.handler, e)
		if lastErr == nil {
			return true
		}
		b.log.Debug().
			Err(lastErr).
			Str("channel", s.channel).
			Str("subscription", s.id).
			Int("attempt", attempts).
			Msg("handler failed")
		if attempts == b.cfg.MaxRetries {
			break
		}
		if !wait(ctx, b.cfg.RetryDelay) {
			lastErr = ctx.Err()
			break
		}
	}

	err := fault.Wrap(fault.KindDeliveryFailure, lastErr,
		fmt.Sprintf("delivery to subscription %s on channel %s failed after %d attempt(s)", s.id, s.channel, attempts),
		fault.WithSubject(s.id))
	b.log.Error().
		Err(err).
		Str("channel", s.channel).
		Str("type", e.Type).
		Str("event", e.ID).
		Msg("event delivery failed")
	return false
}

func invoke(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, e)
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func unknownChannel(name string) error {
	return fault.New(fault.KindNotFound, "unknown channel: "+name, fault.WithSubject(name))
}
