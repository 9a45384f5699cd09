// Package pluginconfig stores, validates and encrypts per-plugin configuration.
package pluginconfig

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"sort"
	"sync"

	"github.com/soyeahso/trellis/internal/eventbus"
	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
	"github.com/soyeahso/trellis/internal/secure"
	"github.com/soyeahso/trellis/internal/storage"
)

// ErrHalt stops the middleware pipeline without error. Nothing is stored.
var ErrHalt = errors.New("config update halted")

// Middleware transforms a config before it is validated and stored.
type Middleware func(ctx context.Context, plugin string, values Values) (Values, error)

// Options wires a Manager's collaborators. Every field except Log is optional.
type Options struct {
	Events     *eventbus.Bus
	Storage    storage.Storage
	Encryption secure.Provider
	Log        *logging.Logger
}

// Manager holds the current config of every plugin.
type Manager struct {
	mu         sync.RWMutex
	schemas    map[string]Schema
	configs    map[string]Values
	middleware []Middleware
	events     *eventbus.Bus
	store      storage.Storage
	enc        secure.Provider
	log        *logging.Logger
}

// New creates a config manager.
func New(opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{
		schemas: make(map[string]Schema),
		configs: make(map[string]Values),
		events:  opts.Events,
		store:   opts.Storage,
		enc:     opts.Encryption,
		log:     log.Sub("pluginconfig"),
	}
}

// RegisterSchema associates schema with plugin.
func (m *Manager) RegisterSchema(plugin string, schema Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.schemas[plugin]; exists {
		return fault.New(fault.KindDuplicateRegistration,
			"config schema already registered: "+plugin, fault.WithSubject(plugin))
	}
	m.schemas[plugin] = maps.Clone(schema)
	m.log.Debug().Str("plugin", plugin).Int("fields", len(schema)).Msg("schema registered")
	return nil
}

// Schema returns the schema registered for plugin.
func (m *Manager) Schema(plugin string) (Schema, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schemas[plugin]
	return maps.Clone(s), ok
}

// Use appends a middleware to the pipeline.
func (m *Manager) Use(mw Middleware) {
	if mw == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.middleware = append(m.middleware, mw)
}

// SetConfig runs values through the middleware pipeline, fills defaults,
// validates, encrypts sensitive fields and stores the result. On any
// failure the previous config is kept.
func (m *Manager) SetConfig(ctx context.Context, plugin string, values Values) error {
	m.mu.RLock()
	pipeline := append([]Middleware(nil), m.middleware...)
	schema := m.schemas[plugin]
	m.mu.RUnlock()

	current := maps.Clone(values)
	if current == nil {
		current = Values{}
	}
	for _, mw := range pipeline {
		next, err := mw(ctx, plugin, current)
		if errors.Is(err, ErrHalt) {
			m.log.Debug().Str("plugin", plugin).Msg("config update halted by middleware")
			return nil
		}
		if err != nil {
			return err
		}
		current = next
	}

	merged := MergeWithDefaults(current, schema)
	if res := ValidateConfig(merged, schema); !res.Valid {
		m.emit(ctx, eventbus.ConfigValidationFailed, map[string]any{
			"plugin": plugin,
			"errors": res.Errors,
		})
		return fault.New(fault.KindValidationFailed, "invalid config for "+plugin,
			fault.WithSubject(plugin), fault.WithDetails(res.Errors...))
	}

	sealed, err := m.encryptSensitive(merged, schema)
	if err != nil {
		return err
	}

	if err := m.persist(ctx, plugin, sealed); err != nil {
		return err
	}

	m.mu.Lock()
	m.configs[plugin] = sealed
	m.mu.Unlock()

	m.log.Info().Str("plugin", plugin).Int("keys", len(sealed)).Msg("config updated")
	m.emit(ctx, eventbus.ConfigChanged, map[string]any{
		"plugin": plugin,
		"config": maps.Clone(sealed),
	})
	return nil
}

// GetConfig returns the stored config. Sensitive fields stay encrypted.
func (m *Manager) GetConfig(plugin string) (Values, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.configs[plugin]
	if !ok {
		return nil, false
	}
	return maps.Clone(v), true
}

// GetDecryptedConfig returns the stored config with sensitive fields decrypted.
func (m *Manager) GetDecryptedConfig(plugin string) (Values, error) {
	m.mu.RLock()
	stored, ok := m.configs[plugin]
	schema := m.schemas[plugin]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(plugin)
	}
	return m.decryptSensitive(stored, schema)
}

// Plugins returns the names of plugins with a stored config, sorted.
func (m *Manager) Plugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.configs))
	for name := range m.configs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LoadConfig reads plugin's config from storage, validates it and makes it current.
func (m *Manager) LoadConfig(ctx context.Context, plugin string) (Values, error) {
	if m.store == nil {
		return nil, fault.New(fault.KindUnsupported, "no config storage configured")
	}
	loaded, err := m.store.Load(ctx, plugin)
	if err != nil {
		m.emit(ctx, eventbus.ConfigError, map[string]any{"plugin": plugin, "error": err.Error()})
		return nil, err
	}
	if loaded == nil {
		return nil, notFound(plugin)
	}

	m.mu.RLock()
	schema := m.schemas[plugin]
	m.mu.RUnlock()

	if res := ValidateConfig(loaded, schema); !res.Valid {
		m.emit(ctx, eventbus.ConfigValidationFailed, map[string]any{
			"plugin": plugin,
			"errors": res.Errors,
		})
		return nil, fault.New(fault.KindValidationFailed, "stored config for "+plugin+" is invalid",
			fault.WithSubject(plugin), fault.WithDetails(res.Errors...))
	}

	m.mu.Lock()
	m.configs[plugin] = loaded
	m.mu.Unlock()
	m.log.Debug().Str("plugin", plugin).Msg("config loaded")
	return maps.Clone(loaded), nil
}

// SaveConfig writes plugin's current config to storage.
func (m *Manager) SaveConfig(ctx context.Context, plugin string) error {
	if m.store == nil {
		return fault.New(fault.KindUnsupported, "no config storage configured")
	}
	cfg, ok := m.GetConfig(plugin)
	if !ok {
		return notFound(plugin)
	}
	return m.persist(ctx, plugin, cfg)
}

// DeleteConfig forgets plugin's config in memory and in storage.
func (m *Manager) DeleteConfig(ctx context.Context, plugin string) error {
	if m.store != nil {
		if err := m.store.Delete(ctx, plugin); err != nil {
			m.emit(ctx, eventbus.ConfigError, map[string]any{"plugin": plugin, "error": err.Error()})
			return err
		}
	}
	m.mu.Lock()
	_, existed := m.configs[plugin]
	delete(m.configs, plugin)
	m.mu.Unlock()

	if existed {
		m.emit(ctx, eventbus.ConfigChanged, map[string]any{"plugin": plugin, "deleted": true})
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, plugin string, values Values) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Save(ctx, plugin, values); err != nil {
		m.log.Error().Err(err).Str("plugin", plugin).Msg("persisting config failed")
		m.emit(ctx, eventbus.ConfigError, map[string]any{"plugin": plugin, "error": err.Error()})
		return err
	}
	return nil
}

// encryptSensitive replaces sensitive values with serialized envelopes of
// their JSON encoding. A value that is already an envelope sealed by this
// provider is kept as is.
func (m *Manager) encryptSensitive(values Values, schema Schema) (Values, error) {
	out := maps.Clone(values)
	for key, field := range schema {
		v, ok := out[key]
		if !field.Sensitive || !ok || v == nil {
			continue
		}
		if m.enc == nil {
			m.log.Warn().Str("field", key).Msg("no encryption provider, sensitive field stored in plain text")
			continue
		}
		if s, isStr := v.(string); isStr && m.sealed(s) {
			continue
		}
		plain, err := encodePlain(v)
		if err != nil {
			return nil, fault.Wrap(fault.KindEncryptionFailure, err, "encode field "+key, fault.WithSubject(key))
		}
		sealed, err := m.enc.Encrypt(plain)
		if err != nil {
			return nil, fault.Wrap(fault.KindEncryptionFailure, err, "encrypt field "+key, fault.WithSubject(key))
		}
		out[key] = sealed
	}
	return out, nil
}

func (m *Manager) decryptSensitive(values Values, schema Schema) (Values, error) {
	out := maps.Clone(values)
	for key, field := range schema {
		s, ok := out[key].(string)
		if !field.Sensitive || !ok || !secure.IsEnvelope(s) {
			continue
		}
		if m.enc == nil {
			return nil, fault.New(fault.KindDecryptionFailure, "no encryption provider for field "+key,
				fault.WithSubject(key))
		}
		plain, err := m.enc.Decrypt(s)
		if err != nil {
			return nil, fault.Wrap(fault.KindDecryptionFailure, err, "decrypt field "+key, fault.WithSubject(key))
		}
		out[key] = decodePlain(plain, field.Type)
	}
	return out, nil
}

// sealed reports whether s is an envelope this manager's provider opens.
func (m *Manager) sealed(s string) bool {
	if !secure.IsEnvelope(s) {
		return false
	}
	_, err := m.enc.Decrypt(s)
	return err == nil
}

func encodePlain(v any) (string, error) {
	data, err := json.Marshal(v)
	return string(data), err
}

// decodePlain reverses encodePlain. Plaintext that is not JSON, or a
// non-string under a string field, predates JSON encoding and is returned
// unchanged.
func decodePlain(plain string, t FieldType) any {
	var v any
	if err := json.Unmarshal([]byte(plain), &v); err != nil {
		return plain
	}
	if _, isStr := v.(string); t == TypeString && !isStr {
		return plain
	}
	return v
}

func (m *Manager) emit(ctx context.Context, eventType string, data any) {
	if m.events == nil || !m.events.IsRunning() {
		return
	}
	ev := eventbus.NewEvent(eventbus.ChannelConfig, eventType, data, "pluginconfig")
	if _, err := m.events.Emit(ctx, ev); err != nil {
		m.log.Warn().Err(err).Str("type", eventType).Msg("config event not delivered")
	}
}

func notFound(plugin string) error {
	return fault.New(fault.KindNotFound, "no config for plugin: "+plugin, fault.WithSubject(plugin))
}
