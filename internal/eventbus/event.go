package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Well-known channels registered by the host.
const (
	ChannelPlugin = "plugin"
	ChannelConfig = "config"
)

// Event types emitted on the plugin channel.
const (
	PluginRegistered  = "plugin:registered"
	PluginInitialized = "plugin:initialized"
	PluginStarted     = "plugin:started"
	PluginStopped     = "plugin:stopped"
	PluginTeardown    = "plugin:teardown"
	PluginError       = "plugin:error"
	PluginUninstalled = "plugin:uninstalled"
)

// Event types emitted on the config channel.
const (
	ConfigChanged          = "CONFIG_CHANGED"
	ConfigValidationFailed = "CONFIG_VALIDATION_FAILED"
	ConfigError            = "config:error"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// NewEvent builds an event with a fresh id and the current time.
func NewEvent(channel, eventType string, data any, source string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Channel:   channel,
		Timestamp: time.Now(),
		Data:      data,
		Source:    source,
	}
}

// channelKey returns the channel an event is routed to. Events without an
// explicit channel are routed by type.
func (e Event) channelKey() string {
	if e.Channel != "" {
		return e.Channel
	}
	return e.Type
}

// DeliveryStatus aggregates the outcome of one Emit across subscribers.
type DeliveryStatus int

const (
	// StatusSuccess means every subscriber handled the event.
	StatusSuccess DeliveryStatus = iota
	// StatusPartial means at least one subscriber succeeded and at least one exhausted its retries.
	StatusPartial
	// StatusFailed means no subscriber succeeded.
	StatusFailed
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusPartial:
		return "PARTIAL"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// classify folds per-subscriber outcomes into a DeliveryStatus.
func classify(succeeded, total int) DeliveryStatus {
	switch {
	case succeeded == total:
		return StatusSuccess
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
