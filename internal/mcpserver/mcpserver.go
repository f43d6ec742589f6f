// Package mcpserver assembles the MCP server: it mounts the tool sets
// on a single server, instruments every handler with execution metrics,
// and exposes the stdio and streamable HTTP transports.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zanatools/zana/internal/observability"
	"github.com/zanatools/zana/internal/tools"
)

const serverName = "zana"

// Options configures the server assembly.
type Options struct {
	Version string
	Metrics *observability.MetricsCollector
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// Server wraps an MCP server with per-tool instrumentation. It
// satisfies tools.Registry, so tool sets register on it directly.
type Server struct {
	mcp     *server.MCPServer
	metrics *observability.MetricsCollector
	tracer  trace.Tracer
	logger  *slog.Logger
}

var _ tools.Registry = (*Server)(nil)

// New creates the MCP server shell. Tools are attached afterwards via
// Register calls on the tool sets.
func New(opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		mcp: server.NewMCPServer(
			serverName,
			opts.Version,
			server.WithToolCapabilities(true),
		),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		logger:  opts.Logger,
	}
}

// AddTool registers a tool with its handler wrapped in execution
// metrics.
func (s *Server) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, s.instrument(tool.Name, handler))
	s.logger.Debug("tool registered", slog.String("tool", tool.Name))
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves MCP over stdin/stdout and blocks until the client
// disconnects.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server listening on stdio")
	return server.ServeStdio(s.mcp)
}

// Handler returns the streamable HTTP transport for mounting on a mux.
// Request-level metrics are the mounting server's concern; tool-level
// instrumentation is already applied per handler.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// instrument wraps a handler with a span, execution counters, duration,
// and the active-run gauge.
func (s *Server) instrument(name string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	if s.metrics == nil && s.tracer == nil {
		return next
	}
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.tracer != nil {
			var span trace.Span
			ctx, span = s.tracer.Start(ctx, "tool."+name,
				trace.WithAttributes(attribute.String("tool.name", name)),
			)
			defer span.End()
		}
		if s.metrics != nil {
			s.metrics.ActiveToolRuns.Inc()
			defer s.metrics.ActiveToolRuns.Dec()
		}

		start := time.Now()
		result, err := next(ctx, request)
		if err != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, "tool execution failed")
		}
		if s.metrics != nil {
			s.metrics.ToolExecutionsTotal.WithLabelValues(name, resultStatus(result, err)).Inc()
			s.metrics.ToolExecutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
		return result, err
	}
}

// resultStatus classifies a tool outcome for metrics. Tool results are
// JSON documents; a success: false or a top-level error key marks a
// handled failure even though the MCP response itself succeeded. Failed
// payloads that name a status keep it, so timeouts and security blocks
// get their own label values.
func resultStatus(result *mcp.CallToolResult, err error) string {
	if err != nil {
		return "error"
	}
	if result == nil {
		return "success"
	}
	if result.IsError {
		return "error"
	}
	if len(result.Content) == 0 {
		return "success"
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		return "success"
	}
	var payload struct {
		Success *bool           `json:"success"`
		Status  string          `json:"status"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal([]byte(text.Text), &payload) != nil {
		return "success"
	}
	switch {
	case payload.Success != nil && !*payload.Success:
		if payload.Status != "" {
			return payload.Status
		}
		return "failed"
	case payload.Success == nil && len(payload.Error) > 0:
		return "failed"
	}
	return "success"
}
