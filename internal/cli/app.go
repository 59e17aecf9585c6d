package cli

import (
	"os"
	"strings"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/aem"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/auth"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/bulk"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/config"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/health"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/metrics"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/store"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/tools"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/transport"
)

const metricsNamespace = "aem_assets"

// app holds the wired components shared by serve, call and check.
type app struct {
	cfg            *config.Config
	logger         *logging.Logger
	metrics        *metrics.Metrics
	health         *health.Tracker
	client         *transport.Client
	oauth          *auth.OAuthProvider
	serviceAccount *auth.ServiceAccountProvider
	watchPath      string
	gateway        *aem.Gateway
	runner         *bulk.Runner
	dispatcher     *tools.Dispatcher
	audit          logging.AuditStore
}

// loadConfig reads the config file. The default path may be absent, in which
// case the environment alone must supply the AEM settings.
func loadConfig() (*config.Config, error) {
	var loader *config.Loader
	if RootCmd.PersistentFlags().Changed("config") || os.Getenv(config.EnvConfigPath) != "" {
		loader = config.NewLoader(globalFlags.Config)
	} else {
		loader = config.NewOptionalLoader(globalFlags.Config)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if globalFlags.DBPath != "" {
		cfg.Audit.Enabled = true
		cfg.Audit.DBPath = globalFlags.DBPath
	}
	if globalFlags.Verbose {
		cfg.Server.LogLevel = string(logging.LevelDebug)
	}
	return cfg, nil
}

// newApp wires providers, gateway, runner and dispatcher from cfg. Logs go
// to stderr so command output on stdout stays machine readable.
func newApp(cfg *config.Config) (*app, error) {
	logger := logging.NewLogger(
		logging.WithOutput(os.Stderr),
		logging.WithLevel(logging.ParseLevel(cfg.Server.LogLevel)),
	)
	m := metrics.NewMetrics(metricsNamespace)

	a := &app{cfg: cfg, logger: logger, metrics: m, health: health.NewTracker(health.DefaultErrorThreshold)}

	if cfg.Audit.Enabled {
		sqliteAudit, err := store.NewSQLiteAuditStoreWithRetention(cfg.Audit.DBPath, cfg.Audit.RetentionDays)
		if err != nil {
			return nil, err
		}
		a.audit = sqliteAudit.WithLogger(logger)
	} else {
		a.audit = store.NewMemoryAuditStore(store.DefaultMemoryCapacity)
	}

	a.client = transport.NewClient(
		transport.WithTimeout(cfg.AEM.Timeout),
		transport.WithLogger(logger),
		transport.WithMetrics(m),
		transport.WithObserver(a.health),
	)

	authOpts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithMetrics(m),
		auth.WithAuditStore(a.audit),
	}
	a.oauth = auth.NewOAuthProvider(a.client, auth.OAuthCredentials{
		ClientID:     cfg.AEM.ClientID,
		ClientSecret: cfg.AEM.ClientSecret,
		TokenURL:     cfg.AEM.IMSTokenURL,
		Scope:        cfg.AEM.Scope,
	}, authOpts...)

	gatewayOpts := []aem.Option{
		aem.WithLogger(logger),
		aem.WithMetrics(m),
		aem.WithAuditStore(a.audit),
	}
	if cfg.AEM.HasServiceAccount() {
		input := strings.TrimSpace(cfg.AEM.ServiceAccount)
		sa, err := auth.LoadServiceAccount(input)
		a.serviceAccount = auth.NewServiceAccountProvider(a.client, sa, authOpts...)
		if err != nil {
			// Keep the provider so a watched file can fix it later; classic
			// calls fail with the load error until then.
			logger.Error("service account descriptor could not be loaded", "error", err.Error())
			a.serviceAccount.SetLoadError(err)
		}
		if !auth.IsInlineDescriptor(input) {
			a.watchPath = input
		}
		gatewayOpts = append(gatewayOpts, aem.WithServiceAccount(a.serviceAccount))
	}

	a.gateway = aem.NewGateway(a.client, cfg.AEM.BaseURL, cfg.AEM.ClientID, a.oauth, gatewayOpts...)
	a.runner = bulk.NewRunner(a.gateway,
		bulk.WithLogger(logger),
		bulk.WithMetrics(m),
		bulk.WithAuditStore(a.audit),
	)
	a.dispatcher = tools.NewDispatcher(a.gateway, a.runner,
		tools.WithLogger(logger),
		tools.WithMetrics(m),
		tools.WithAuditStore(a.audit),
	)
	return a, nil
}

// authModes lists the credential flows available to the gateway.
func (a *app) authModes() []string {
	modes := []string{"oauth"}
	if a.serviceAccount != nil {
		modes = append(modes, "service_account")
	}
	return modes
}

func (a *app) Close() error {
	if a.audit != nil {
		return a.audit.Close()
	}
	return nil
}
