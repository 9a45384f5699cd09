package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/trellis/internal/config"
	"github.com/soyeahso/trellis/internal/host"
	"github.com/soyeahso/trellis/internal/logging"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		storageBackend string
		bridgeBackend  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the plugin host and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if storageBackend != "" {
				cfg.Storage.Backend = storageBackend
			}
			if bridgeBackend != "" {
				cfg.Bridge.Backend = bridgeBackend
			}
			if err := validate(&cfg); err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			h, err := host.New(ctx, cfg, paths, hostLogger(cfg))
			if err != nil {
				return err
			}
			if err := h.Start(ctx); err != nil {
				h.Close(context.Background())
				return err
			}

			log.Info().
				Str("storage", cfg.Storage.Backend).
				Str("bridge", cfg.Bridge.Backend).
				Strs("plugins", cfg.Plugins.Enabled).
				Msg("trellis running")

			<-ctx.Done()
			log.Info().Msg("shutting down")
			return h.Close(context.Background())
		},
	}

	cmd.Flags().StringVar(&storageBackend, "storage", "", "override storage backend (memory, file, sqlite, mysql, redis)")
	cmd.Flags().StringVar(&bridgeBackend, "bridge", "", "override bridge backend (none, redis, amqp)")

	return cmd
}

// loadConfig reads the config file named by --config.
func loadConfig() (config.Config, error) {
	return config.Load(paths.Config)
}

func validate(cfg *config.Config) error {
	issues := config.Validate(cfg)
	if len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return nil
}

// hostLogger honors the config file's logging section unless --log-level was given.
func hostLogger(cfg config.Config) *logging.Logger {
	if logLevel != "" {
		return log
	}
	return logging.NewWithStyle(nil, cfg.Logging.Level, cfg.Logging.Style)
}

// withHost starts a short-lived host for commands that inspect plugin state.
// Plugin logs are silenced unless --log-level is set.
func withHost(fn func(ctx context.Context, h *host.Host) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := validate(&cfg); err != nil {
		return err
	}

	hlog := log
	if logLevel == "" {
		hlog = logging.New(nil, "silent")
	}

	ctx := context.Background()
	h, err := host.New(ctx, cfg, paths, hlog)
	if err != nil {
		return err
	}
	defer h.Close(ctx)

	if err := h.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, h)
}
