// Package host wires the event bus, registries, theme, config and plugin
// managers into one running instance.
package host

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/soyeahso/trellis/internal/bridge"
	"github.com/soyeahso/trellis/internal/component"
	"github.com/soyeahso/trellis/internal/config"
	"github.com/soyeahso/trellis/internal/eventbus"
	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
	"github.com/soyeahso/trellis/internal/plugin"
	"github.com/soyeahso/trellis/internal/pluginconfig"
	"github.com/soyeahso/trellis/internal/plugins/calendar"
	"github.com/soyeahso/trellis/internal/route"
	"github.com/soyeahso/trellis/internal/secure"
	"github.com/soyeahso/trellis/internal/storage"
	"github.com/soyeahso/trellis/internal/theme"
)

// Builtin creates a fresh descriptor for a plugin shipped with trellis.
type Builtin func() *plugin.Plugin

// Builtins returns the plugins that can be enabled by name.
func Builtins() map[string]Builtin {
	return map[string]Builtin{
		calendar.ID: func() *plugin.Plugin { return calendar.New().Descriptor() },
	}
}

// Host owns every long-lived instance.
type Host struct {
	cfg config.Config
	log *logging.Logger

	Bus        *eventbus.Bus
	Components *component.UIRegistry
	Routes     *route.Registry
	Themes     *theme.Manager
	Configs    *pluginconfig.Manager
	Plugins    *plugin.Manager
	Storage    storage.Storage

	forwarder *bridge.Forwarder
	builtins  map[string]Builtin
}

// New builds a host from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg config.Config, paths config.Paths, log *logging.Logger) (*Host, error) {
	if log == nil {
		log = logging.Nop()
	}
	h := &Host{
		cfg:      cfg,
		log:      log.Sub("host"),
		builtins: Builtins(),
	}

	h.Bus = eventbus.New(eventbus.Config{
		MaxRetries: cfg.EventBus.MaxRetries,
		RetryDelay: time.Duration(cfg.EventBus.RetryDelayMs) * time.Millisecond,
	}, log)
	for _, ch := range channels(cfg.EventBus.Channels) {
		if err := h.Bus.RegisterChannel(ch); err != nil {
			return nil, fmt.Errorf("registering channel %s: %w", ch, err)
		}
	}

	h.Components = component.NewUIRegistry(log)
	h.Routes = route.NewRegistry(log)
	h.Themes = theme.NewManager(log)
	if cfg.Theme.File != "" {
		path := cfg.Theme.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(paths.Themes, path)
		}
		if err := h.Themes.LoadFile(path); err != nil {
			return nil, err
		}
	}

	var enc secure.Provider
	if cfg.Encryption.Enabled {
		aead, err := secure.NewFromPassphrase(cfg.Encryption.Algorithm, cfg.Encryption.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("configuring encryption: %w", err)
		}
		enc = aead
	}

	store, err := storage.Open(ctx, storageOptions(cfg.Storage, paths), log)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}
	h.Storage = store

	h.Configs = pluginconfig.New(pluginconfig.Options{
		Events:     h.Bus,
		Storage:    store,
		Encryption: enc,
		Log:        log,
	})

	h.Plugins = plugin.NewManager(&plugin.API{
		Events:     h.Bus,
		Components: h.Components,
		Routes:     h.Routes,
		Themes:     h.Themes,
		Config:     h.Configs,
	}, log)

	sink, err := bridge.Open(ctx, bridge.Options{
		Backend:  cfg.Bridge.Backend,
		URL:      cfg.Bridge.URL,
		Exchange: cfg.Bridge.Exchange,
	}, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening %s bridge: %w", cfg.Bridge.Backend, err)
	}
	if sink != nil {
		h.forwarder = bridge.NewForwarder(h.Bus, sink, cfg.Bridge.Prefix, log)
	}

	return h, nil
}

// RegisterBuiltin makes b available to Start under name.
func (h *Host) RegisterBuiltin(name string, b Builtin) {
	h.builtins[name] = b
}

// Start runs the bus and installs, initializes and enables every plugin in
// plugins.enabled. Stored configs are loaded before a plugin initializes.
func (h *Host) Start(ctx context.Context) error {
	h.Bus.Start()
	h.Plugins.Initialize()

	if h.forwarder != nil {
		if err := h.forwarder.Start(h.cfg.Bridge.Channels); err != nil {
			return err
		}
	}

	for _, name := range h.cfg.Plugins.Enabled {
		if err := h.startPlugin(ctx, name); err != nil {
			return fmt.Errorf("starting plugin %s: %w", name, err)
		}
	}

	h.log.Info().
		Int("plugins", h.Plugins.Registry().Count()).
		Strs("channels", h.Bus.Channels()).
		Msg("host started")
	return nil
}

func (h *Host) startPlugin(ctx context.Context, name string) error {
	build, ok := h.builtins[name]
	if !ok {
		return fault.New(fault.KindNotFound, "no builtin plugin named "+name, fault.WithSubject(name))
	}
	p := build()
	if err := h.Plugins.InstallPlugin(ctx, p); err != nil {
		return err
	}

	if _, err := h.Configs.LoadConfig(ctx, p.ID); err != nil && !fault.IsKind(err, fault.KindNotFound) {
		h.log.Warn().Err(err).Str("plugin", p.ID).Msg("stored config not loaded")
	}

	if err := h.Plugins.InitializePlugin(ctx, p.ID); err != nil {
		return err
	}
	return h.Plugins.EnablePlugin(ctx, p.ID)
}

// Close disables and uninstalls plugins in reverse install order, then stops
// the bridge and bus and closes storage.
func (h *Host) Close(ctx context.Context) error {
	var errs []error

	if h.Plugins.IsInitialized() {
		installed := h.Plugins.Plugins()
		for i := len(installed) - 1; i >= 0; i-- {
			id := installed[i].ID
			if h.Plugins.IsPluginActive(id) {
				if err := h.Plugins.DisablePlugin(ctx, id); err != nil {
					errs = append(errs, fmt.Errorf("disabling %s: %w", id, err))
				}
			}
			if err := h.Plugins.UninstallPlugin(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("uninstalling %s: %w", id, err))
			}
		}
	}

	if h.forwarder != nil {
		if err := h.forwarder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing bridge: %w", err))
		}
	}
	h.Bus.Stop()

	if err := h.Storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing storage: %w", err))
	}
	return errors.Join(errs...)
}

// channels returns configured plus the channels the managers emit on.
func channels(configured []string) []string {
	out := make([]string, 0, len(configured)+2)
	for _, ch := range configured {
		if ch != "" && !slices.Contains(out, ch) {
			out = append(out, ch)
		}
	}
	for _, ch := range []string{eventbus.ChannelPlugin, eventbus.ChannelConfig} {
		if !slices.Contains(out, ch) {
			out = append(out, ch)
		}
	}
	return out
}

func storageOptions(sc config.StorageConfig, paths config.Paths) storage.Options {
	opts := storage.Options{
		Backend: sc.Backend,
		Path:    sc.Path,
		Format:  sc.Format,
		DSN:     sc.DSN,
		Redis: storage.RedisOptions{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
		},
	}
	if opts.Path == "" {
		switch sc.Backend {
		case storage.BackendSQLite:
			opts.Path = paths.DB
		case storage.BackendFile:
			opts.Path = paths.Configs
		}
	}
	return opts
}
