package cli

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/soyeahso/trellis/internal/host"
	"github.com/soyeahso/trellis/internal/pluginconfig"
	"github.com/spf13/cobra"
)

func newPluginConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin-config",
		Short: "Get, set or delete a plugin's stored configuration",
	}

	cmd.AddCommand(newPluginConfigGetCmd())
	cmd.AddCommand(newPluginConfigSetCmd())
	cmd.AddCommand(newPluginConfigDeleteCmd())

	return cmd
}

func newPluginConfigGetCmd() *cobra.Command {
	var decrypt bool

	cmd := &cobra.Command{
		Use:   "get <plugin> [key]",
		Short: "Print a plugin's configuration",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHost(func(ctx context.Context, h *host.Host) error {
				values, err := pluginValues(h, args[0], decrypt)
				if err != nil {
					return err
				}
				if len(args) == 1 {
					return printValue(map[string]any(values))
				}
				val, ok := values[args[1]]
				if !ok {
					return fmt.Errorf("key %q not set for plugin %s", args[1], args[0])
				}
				return printValue(val)
			})
		},
	}

	cmd.Flags().BoolVar(&decrypt, "decrypt", false, "show sensitive values in plaintext")
	return cmd
}

func newPluginConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <plugin> <key=value>...",
		Short: "Set plugin configuration values",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			updates := make(pluginconfig.Values, len(args)-1)
			for _, kv := range args[1:] {
				key, raw, ok := strings.Cut(kv, "=")
				if !ok || key == "" {
					return fmt.Errorf("expected key=value, got %q", kv)
				}
				updates[key] = parseValue(raw)
			}

			return withHost(func(ctx context.Context, h *host.Host) error {
				current, _ := h.Configs.GetConfig(name)
				if current == nil {
					current = pluginconfig.Values{}
				}
				maps.Copy(current, updates)

				if err := h.Configs.SetConfig(ctx, name, current); err != nil {
					return err
				}
				for key := range updates {
					fmt.Printf("Set %s.%s\n", name, key)
				}
				return nil
			})
		},
	}
}

func newPluginConfigDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <plugin>",
		Short: "Delete a plugin's stored configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHost(func(ctx context.Context, h *host.Host) error {
				if err := h.Configs.DeleteConfig(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted config for %s\n", args[0])
				return nil
			})
		},
	}
}

func pluginValues(h *host.Host, name string, decrypt bool) (pluginconfig.Values, error) {
	if decrypt {
		return h.Configs.GetDecryptedConfig(name)
	}
	values, ok := h.Configs.GetConfig(name)
	if !ok {
		return nil, fmt.Errorf("no config stored for plugin %s", name)
	}
	return values, nil
}
