package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/soyeahso/trellis/internal/config"
	"github.com/soyeahso/trellis/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show trellis status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Trellis %s (commit %s, plugin api %s)\n\n", version.Version, version.Commit, version.APIVersion)

			// Show paths
			fmt.Printf("Config:   %s\n", paths.Config)
			fmt.Printf("Data:     %s\n", paths.Data)
			fmt.Printf("Themes:   %s\n", paths.Themes)
			fmt.Printf("Logs:     %s\n", paths.Logs)
			fmt.Println()

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Println("Config:   not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config:   error loading: %v\n", err)
				return nil
			}

			fmt.Printf("EventBus: channels=%s retries=%d delay=%dms\n",
				strings.Join(cfg.EventBus.Channels, ","), cfg.EventBus.MaxRetries, cfg.EventBus.RetryDelayMs)

			// Storage
			switch cfg.Storage.Backend {
			case "file":
				fmt.Printf("Storage:  file format=%s path=%s\n", cfg.Storage.Format, orDefault(cfg.Storage.Path, paths.Configs))
			case "sqlite":
				fmt.Printf("Storage:  sqlite path=%s\n", orDefault(cfg.Storage.Path, paths.DB))
			case "redis":
				fmt.Printf("Storage:  redis addr=%s db=%d\n", cfg.Storage.Redis.Addr, cfg.Storage.Redis.DB)
			default:
				fmt.Printf("Storage:  %s\n", cfg.Storage.Backend)
			}

			if cfg.Encryption.Enabled {
				fmt.Printf("Secrets:  encrypted with %s\n", cfg.Encryption.Algorithm)
			} else {
				fmt.Println("Secrets:  stored in plaintext")
			}

			if cfg.Bridge.Backend != "" && cfg.Bridge.Backend != "none" {
				fmt.Printf("Bridge:   %s channels=%s prefix=%s\n",
					cfg.Bridge.Backend, strings.Join(cfg.Bridge.Channels, ","), cfg.Bridge.Prefix)
			} else {
				fmt.Println("Bridge:   (disabled)")
			}

			if cfg.Theme.File != "" {
				fmt.Printf("Theme:    %s\n", cfg.Theme.File)
			}

			if len(cfg.Plugins.Enabled) > 0 {
				fmt.Printf("Plugins:  %s\n", strings.Join(cfg.Plugins.Enabled, ", "))
			} else {
				fmt.Println("Plugins:  (none enabled)")
			}

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
