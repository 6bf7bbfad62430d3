package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relicforge/resourceserver/internal/fanout"
	"github.com/relicforge/resourceserver/internal/resourceserverlog"
	"github.com/relicforge/resourceserver/internal/server"
)

var (
	serveConfigPath  string
	serveDevelopment bool
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "resourceserver.ini", "path to the server's ini configuration file")
	serveCmd.Flags().BoolVar(&serveDevelopment, "dev", false, "use development console logging instead of production JSON")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resource server daemon",
	Long: `serve starts the resource server: it watches the configured source
data directory, compiles requested resources on demand, keeps compiled
artifacts up to date against their transitive source dependencies, and
serves connected clients over a websocket transport until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := resourceserverlog.New(serveDevelopment)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer logger.Sync()

		hub := fanout.NewHub(context.Background(), logger)

		// srv is assigned once server.New returns; the closure below
		// captures the variable itself, not its (zero) value at
		// construction time, so the pool sees the real flag once the
		// server exists.
		var srv *server.Server
		isExiting := func() bool { return srv != nil && srv.IsExiting() }

		comps, err := bootstrap(serveConfigPath, logger, hub, isExiting)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		srvConfig := server.DefaultConfig()
		srvConfig.Address = fmt.Sprintf(":%d", comps.cfg.ResourceServerPort)
		srvConfig.AdminHTTPEnabled = comps.cfg.AdminHTTPEnabled

		srv, err = server.New(srvConfig, comps.manager, comps.bridge, comps.engine, hub, logger)
		if err != nil {
			return fmt.Errorf("failed to construct server: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return srv.Run(ctx)
	},
}
