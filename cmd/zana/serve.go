package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/zanatools/zana/internal/config"
	"github.com/zanatools/zana/internal/credentials"
	"github.com/zanatools/zana/internal/gateway"
	"github.com/zanatools/zana/internal/gateway/httpapi"
	"github.com/zanatools/zana/internal/mcpserver"
	"github.com/zanatools/zana/internal/observability"
	"github.com/zanatools/zana/internal/security"
	"github.com/zanatools/zana/internal/tools/browser"
	"github.com/zanatools/zana/internal/tools/postgres"
	"github.com/zanatools/zana/internal/tools/wikipedia"
)

var serveListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP tool server (stdio or streamable HTTP)",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `zana --listen :8080` and `zana serve --listen :8080` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveListenAddr, "listen", "", "serve MCP over HTTP on this address (e.g. :8080)")
	}
}

// runServe starts the MCP tool server: stdio or streamable HTTP transport,
// plus the optional admin API and background maintenance.
func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if serveListenAddr != "" {
		if cfg.Server == nil {
			cfg.Server = &config.ServerConfig{}
		}
		cfg.Server.Transport = "http"
		cfg.Server.ListenAddr = serveListenAddr
	}

	logger := newLogger(cfg.Log)
	transport := cfg.Server.TransportName()

	logger.Info("starting zana",
		slog.String("version", version),
		slog.String("transport", transport),
		slog.String("vault_backend", cfg.Vault.BackendName()),
	)

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Credential resolvers shared by the browser tools.
	var resolver browser.APIKeyResolver = credentials.NewResolver(sc.Store, logger)
	var logins browser.LoginResolver = credentials.NewAuthResolver(sc.Auth, logger)
	if sc.Obs != nil && sc.Obs.Metrics != nil {
		resolver = observability.NewInstrumentedResolver(resolver, sc.Obs.Metrics, sc.Obs.TracerOrNil())
		logins = observability.NewInstrumentedLoginResolver(logins, sc.Obs.Metrics)
	}

	// Browser engine. Nil when unconfigured: task runs then fail with a
	// configuration error while credential management stays usable.
	var engine browser.Engine
	if cfg.Tools.Browser.EngineURL != "" {
		engine = browser.NewWSEngine(cfg.Tools.Browser.EngineURL, logger)
		if sc.Obs != nil && sc.Obs.Metrics != nil {
			engine = observability.NewInstrumentedEngine(engine, sc.Obs.Metrics, sc.Obs.TracerOrNil(), sc.Obs.Anomaly)
		}
		logger.Debug("browser engine configured", slog.String("url", cfg.Tools.Browser.EngineURL))
	}

	validate := taskValidator(cfg.Tools.Browser.AllowedDomains)
	if sc.Obs != nil && sc.Obs.Metrics != nil {
		validate = observability.NewInstrumentedValidator(validate, sc.Obs.Metrics)
	}

	browserTools := browser.NewTools(engine, resolver, logins, sc.Auth, validate, logger)

	pgTools := postgres.NewTools(sc.Store, postgres.Config{
		DSN:                cfg.Tools.Postgres.DSN,
		MaxRows:            cfg.Tools.Postgres.MaxRows,
		StatementTimeoutMS: cfg.Tools.Postgres.StatementTimeoutMS,
	}, logger)
	defer func() {
		if err := pgTools.Close(); err != nil {
			logger.Error("closing database pool", slog.String("error", err.Error()))
		}
	}()

	wikiCfg := wikipedia.Config{
		Language:  cfg.Tools.Wikipedia.Language,
		UserAgent: cfg.Tools.Wikipedia.UserAgent,
	}
	if cfg.Tools.Wikipedia.TimeoutSeconds > 0 {
		wikiCfg.Timeout = time.Duration(cfg.Tools.Wikipedia.TimeoutSeconds) * time.Second
	}
	wikiTools := wikipedia.NewTools(wikiCfg, logger)

	// MCP server with all tools registered.
	opts := mcpserver.Options{Version: version, Logger: logger}
	if sc.Obs != nil {
		opts.Metrics = sc.Obs.Metrics
		if ts := sc.Obs.TracerOrNil(); ts != nil {
			opts.Tracer = ts.Tracer()
		}
	}
	srv := mcpserver.New(opts)
	browserTools.Register(srv)
	pgTools.Register(srv)
	wikiTools.Register(srv)

	// Readiness checks for dependencies that are actually configured.
	if sc.Obs != nil && sc.Obs.Health != nil {
		sc.Obs.Health.AddCheck("vault", func(ctx context.Context) error {
			_, err := sc.Store.List(ctx)
			return err
		})
		if engine != nil {
			sc.Obs.Health.AddCheck("engine", engine.Ping)
		}
		if cfg.Tools.Postgres.DSN != "" || os.Getenv("DATABASE_URL") != "" {
			sc.Obs.Health.AddCheck("database", pgTools.Ping)
		}
	}

	// Background maintenance: reconcile the auth index against vault contents.
	if cfg.Maintenance != nil {
		spec := cfg.Maintenance.ScheduleSpec()
		c := cron.New()
		if _, err := c.AddFunc(spec, func() {
			rctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := sc.Auth.ReconcileIndex(rctx); err != nil {
				logger.Warn("auth index reconciliation failed", slog.String("error", err.Error()))
			}
		}); err != nil {
			return fmt.Errorf("invalid maintenance schedule %q: %w", spec, err)
		}
		c.Start()
		defer c.Stop()
		logger.Debug("maintenance schedule started", slog.String("spec", spec))
	}

	// Build serving surfaces.
	var gateways []gateway.Gateway

	var adminGW *httpapi.Gateway
	if cfg.Admin != nil && cfg.Admin.Enabled {
		adminCfg := httpapi.Config{ListenAddr: cfg.Admin.Addr()}
		if sc.Obs != nil {
			adminCfg.Metrics = sc.Obs.Metrics
			adminCfg.HealthChecker = sc.Obs.Health
			if sc.Obs.Metrics != nil {
				adminCfg.MetricsRegistry = sc.Obs.Metrics.Registry
			}
			if sc.Obs.Tracer != nil {
				adminCfg.Tracer = sc.Obs.Tracer.Tracer()
			}
			if cfg.Observability != nil && cfg.Observability.Metrics != nil {
				adminCfg.MetricsPath = cfg.Observability.Metrics.Path
			}
		}
		adminGW = httpapi.NewGateway(adminCfg, sc.Store, logger)
	}

	switch transport {
	case "http":
		handler := srv.Handler()
		if cfg.Server.ListenAddr == "" && adminGW != nil {
			// Mount on the admin gateway, which applies the metrics
			// middleware to everything it serves.
			adminGW.WithHandler(cfg.Server.MountPath(), handler)
			logger.Debug("mcp endpoint mounted on admin api",
				slog.String("path", cfg.Server.MountPath()),
			)
		} else {
			if sc.Obs != nil && sc.Obs.Metrics != nil {
				var tracer trace.Tracer
				if ts := sc.Obs.TracerOrNil(); ts != nil {
					tracer = ts.Tracer()
				}
				handler = observability.HTTPMetricsMiddleware(sc.Obs.Metrics, tracer, handler)
			}
			gateways = append(gateways, newMCPHTTPGateway(handler, cfg.Server.ListenAddr, cfg.Server.MountPath(), logger))
			logger.Debug("gateway enabled",
				slog.String("type", "mcp-http"),
				slog.String("addr", cfg.Server.ListenAddr),
				slog.String("path", cfg.Server.MountPath()),
			)
		}
	default:
		gateways = append(gateways, newStdioGateway(srv, logger))
		logger.Debug("gateway enabled", slog.String("type", "stdio"))
	}

	if adminGW != nil {
		gateways = append(gateways, adminGW)
		logger.Debug("gateway enabled",
			slog.String("type", "admin"),
			slog.String("addr", cfg.Admin.Addr()),
		)
	}

	// Start all gateways in goroutines.
	errs := make(chan error, len(gateways))
	for _, gw := range gateways {
		go func(g gateway.Gateway) {
			errs <- g.Start(ctx)
		}(gw)
	}

	// Wait for signal or first gateway error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := len(gateways) - 1; i >= 0; i-- {
		if err := gateways[i].Stop(shutdownCtx); err != nil {
			logger.Error("stopping gateway", slog.String("error", err.Error()))
		}
	}

	return nil
}

// taskValidator returns the domain validation hook for browser tasks.
// Configured domains act as the default allowlist for tasks that set none;
// a task's own allowlist always wins.
func taskValidator(defaultDomains []string) browser.ValidateFunc {
	if len(defaultDomains) == 0 {
		return nil
	}
	return func(task string, allowedDomains []string) error {
		if len(allowedDomains) == 0 {
			allowedDomains = defaultDomains
		}
		return security.ValidateTaskDomains(task, allowedDomains)
	}
}

// stdioGateway serves MCP over stdin/stdout as a gateway.Gateway.
type stdioGateway struct {
	srv    *mcpserver.Server
	logger *slog.Logger
}

func newStdioGateway(srv *mcpserver.Server, logger *slog.Logger) *stdioGateway {
	return &stdioGateway{srv: srv, logger: logger}
}

func (g *stdioGateway) Start(_ context.Context) error {
	g.logger.Debug("mcp stdio transport starting")
	return g.srv.ServeStdio()
}

// Stop is a no-op: the stdio session ends when the client closes stdin,
// and there is no in-flight state to drain.
func (g *stdioGateway) Stop(_ context.Context) error {
	return nil
}

// mcpHTTPGateway serves the MCP streamable HTTP transport on its own
// listener, for deployments that run the http transport without the admin
// API or on a separate address.
type mcpHTTPGateway struct {
	handler    http.Handler
	addr       string
	path       string
	logger     *slog.Logger
	httpServer *http.Server
}

func newMCPHTTPGateway(handler http.Handler, addr, path string, logger *slog.Logger) *mcpHTTPGateway {
	return &mcpHTTPGateway{
		handler: handler,
		addr:    addr,
		path:    path,
		logger:  logger,
	}
}

func (g *mcpHTTPGateway) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(g.path, g.handler)

	// No write timeout: streamable MCP sessions hold the response open.
	g.httpServer = &http.Server{
		Addr:              g.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("mcp http server starting",
		slog.String("addr", g.addr),
		slog.String("path", g.path),
	)
	if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("mcp http server: %w", err)
	}
	return nil
}

func (g *mcpHTTPGateway) Stop(ctx context.Context) error {
	if g.httpServer != nil {
		return g.httpServer.Shutdown(ctx)
	}
	return nil
}
