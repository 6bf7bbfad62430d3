package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/relicforge/resourceserver/internal/packaging"
	"github.com/relicforge/resourceserver/internal/resource"
	"github.com/relicforge/resourceserver/internal/resourceserverlog"
)

var (
	packageConfigPath  string
	packageDevelopment bool
)

func init() {
	packageCmd.Flags().StringVar(&packageConfigPath, "config", "resourceserver.ini", "path to the server's ini configuration file")
	packageCmd.Flags().BoolVar(&packageDevelopment, "dev", false, "use development console logging instead of production JSON")
}

var packageCmd = &cobra.Command{
	Use:   "package <map-resource-id>...",
	Short: "Build a packaged build from the given map resources",
	Long: `package walks the transitive install-dependency closure of the
given map resources and compiles it into the packaged-build output
tree, then exits. It does not watch the file system or serve clients.
The compiler registry wired into this command is empty: resources with
no registered compiler, the given maps included, are neither expanded
nor compiled, so only the engine_module_resources entries are packaged.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := resourceserverlog.New(packageDevelopment)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer logger.Sync()

		comps, err := bootstrap(packageConfigPath, logger, nil, func() bool { return false })
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		for _, raw := range args {
			id, err := resource.ParseID(raw)
			if err != nil {
				return fmt.Errorf("invalid map resource id %q: %w", raw, err)
			}
			comps.engine.AddMap(id)
		}

		comps.engine.StartPackaging()

		cyan := color.New(color.FgCyan)
		green := color.New(color.FgGreen, color.Bold)

		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()

		for comps.engine.State() != packaging.Complete {
			<-ticker.C
			comps.engine.Tick(comps.manager)
			comps.manager.Tick()
			cyan.Fprintf(os.Stdout, "\r%-10s %3.0f%%", comps.engine.State(), comps.engine.Progress()*100)
		}
		fmt.Println()
		green.Fprintln(os.Stdout, "✓ packaging complete")

		comps.manager.Shutdown()
		return nil
	},
}
