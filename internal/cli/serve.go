package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/api"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/auth"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/mcp"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the HTTP and MCP server",
	Long: `Start the server.

The server exposes:
  GET  /            server information
  GET  /api/mcp     server information
  POST /api/mcp     run a tool: {"tool": "...", "arguments": {...}}
  GET  /api/audit   recent audit events
  GET  /api/status  upstream health per surface
  GET  /health      liveness
  GET  /metrics     Prometheus metrics
  /mcp              Model Context Protocol (streamable HTTP)

Example:
  aem-assets serve --config config.yaml --port 8080`,
	RunE: runServe,
}

var serveFlags struct {
	Host    string
	Port    int
	Timeout time.Duration
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", 0, "Shutdown timeout (overrides config)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.Timeout > 0 {
		cfg.Server.ShutdownTimeout = serveFlags.Timeout
	}

	a, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error("error closing audit store", "error", err.Error())
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.watchPath != "" && cfg.AEM.WatchServiceAccount {
		watcher := auth.NewDescriptorWatcher(a.watchPath, a.serviceAccount, a.logger, a.audit)
		if err := watcher.Watch(ctx); err != nil {
			a.logger.Warn("service account watch disabled", "path", a.watchPath, "error", err.Error())
		} else {
			a.logger.Info("watching service account descriptor", "path", a.watchPath)
		}
	}

	opts := []api.Option{
		api.WithLogger(a.logger),
		api.WithMetrics(a.metrics),
		api.WithAuditStore(a.audit),
		api.WithHealthTracker(a.health),
	}
	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer(a.dispatcher, a.dispatcher.Tools(), a.logger)
		opts = append(opts, api.WithMCPHandler(cfg.MCP.Path, mcpServer.Handler()))
	}
	server := api.NewServer(cfg.Server, cfg.API, a.dispatcher, opts...)

	a.logger.Info("starting aem-assets server",
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		"aem_base_url", cfg.AEM.BaseURL,
		"auth_modes", a.authModes(),
		"mcp_enabled", cfg.MCP.Enabled,
		"audit_db", auditLocation(cfg.Audit.Enabled, cfg.Audit.DBPath),
	)
	if a.serviceAccount == nil {
		a.logger.Warn("no service account configured; classic folder listing and metadata updates are unavailable")
	}
	if len(cfg.API.Auth.APIKeys) > 0 {
		a.logger.Info("API key authentication enabled", "keys", api.MaskAPIKeys(cfg.API.Auth.APIKeys))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	sigCh := api.SetupSignalHandler()
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		a.logger.Info("received signal", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func auditLocation(enabled bool, path string) string {
	if !enabled {
		return "memory"
	}
	return path
}
