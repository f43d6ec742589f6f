// Package httpapi implements the admin HTTP API.
//
// Security:
//   - Credential listing returns reference IDs only, never secret material
//   - Intended for a private interface; TLS via reverse proxy if exposed
//   - All requests pass through the shared metrics/tracing middleware
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/zanatools/zana/internal/observability"
	"github.com/zanatools/zana/internal/vault"
)

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the admin HTTP API.
type Config struct {
	ListenAddr  string // e.g., ":9090"
	MetricsPath string // Path for the metrics endpoint. Default: "/metrics".

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for the metrics endpoint.
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the admin HTTP server. It serves liveness, readiness,
// metrics, and credential reference listing, and can additionally mount
// the MCP streamable HTTP transport.
type Gateway struct {
	config Config
	store  vault.Store
	logger *slog.Logger
	server *http.Server
	okapi  *okapi.Okapi

	// Extra handlers mounted on the HTTP mux (e.g., the MCP endpoint).
	extraRoutes []extraRoute
}

// extraRoute stores an additional handler to be mounted on the HTTP mux.
type extraRoute struct {
	pattern string
	handler http.Handler
}

// NewGateway creates the admin HTTP API. A nil store disables the
// credentials endpoint.
func NewGateway(cfg Config, store vault.Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config: cfg,
		store:  store,
		logger: logger,
		okapi:  okapi.New(),
	}
}

// WithHandler mounts an additional handler on the HTTP mux at the given
// pattern, for GET, POST, and DELETE. Used to serve the MCP streamable
// HTTP transport alongside the admin routes.
func (g *Gateway) WithHandler(pattern string, handler http.Handler) *Gateway {
	g.extraRoutes = append(g.extraRoutes, extraRoute{pattern: pattern, handler: handler})
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	group := g.okapi.Group("/v1")
	group.Get("/credentials", g.handleCredentialList,
		okapi.DocSummary("List stored credential references"),
		okapi.DocTags("Credentials"),
		okapi.DocResponse(CredentialsResponse{}),
		okapi.DocResponse(http.StatusServiceUnavailable, ErrorBody{}),
	)

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}

	// Extra handlers (e.g., the MCP streamable HTTP endpoint).
	for _, er := range g.extraRoutes {
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
			g.okapi.HandleStd(method, er.pattern, er.handler.ServeHTTP)
		}
	}

	// Streamable MCP sessions hold the response open, so the write
	// timeout only applies when nothing long-lived is mounted.
	writeTimeout := 60 * time.Second
	if len(g.extraRoutes) > 0 {
		writeTimeout = 0
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("admin api starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("admin api stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Handlers ---

// HealthResponse is the JSON response for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// CredentialsResponse lists stored credential references. Reference IDs
// only; secret material never leaves the vault through this API.
type CredentialsResponse struct {
	Credentials []string `json:"credentials"`
	Count       int      `json:"count"`
}

func (g *Gateway) handleCredentialList(c *okapi.Context) error {
	if g.store == nil {
		return c.AbortServiceUnavailable("credential store not configured")
	}

	ids, err := g.store.List(c.Context())
	if err != nil {
		g.logger.Error("credential listing failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("listing failed")
	}

	return c.OK(CredentialsResponse{Credentials: ids, Count: len(ids)})
}

// handleLiveness is the Kubernetes liveness probe
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}
