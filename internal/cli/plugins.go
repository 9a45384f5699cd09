package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/soyeahso/trellis/internal/host"
	"github.com/spf13/cobra"
)

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect installed plugins",
	}

	cmd.AddCommand(newPluginsListCmd())
	cmd.AddCommand(newPluginsBuiltinsCmd())
	return cmd
}

func newPluginsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plugins enabled in the config file and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHost(func(ctx context.Context, h *host.Host) error {
				infos := h.Plugins.Registry().Info()
				if len(infos) == 0 {
					fmt.Println("No plugins installed.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tVERSION\tSTATUS\tROUTES")
				for _, info := range infos {
					status := info.Status
					if status == "" {
						status = "-"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
						info.ID, info.Name, info.Version, status,
						len(h.Routes.PluginRoutes(info.ID)))
				}
				return w.Flush()
			})
		},
	}
}

func newPluginsBuiltinsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "builtins",
		Short: "List plugins that can be named in plugins.enabled",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			names := make([]string, 0)
			for name := range host.Builtins() {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				fmt.Println(name)
			}
		},
	}
}
