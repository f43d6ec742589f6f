// Package gateway defines the interface shared by Zana's serving surfaces.
package gateway

import "context"

// Gateway is a serving surface (MCP over stdio, MCP over streamable HTTP,
// the admin API). The serve command starts every configured gateway and
// stops them in reverse order on shutdown.
type Gateway interface {
	// Start launches the gateway's serve loop and blocks until the gateway
	// exits or the context is canceled. Returns an error only on failure.
	Start(ctx context.Context) error

	// Stop performs graceful shutdown. The context carries a deadline
	// for the grace period. In-flight requests should drain before returning.
	Stop(ctx context.Context) error
}
