// Package tools groups the MCP tool sets and the registration surface
// they share. Each subpackage owns one tool family (browser automation,
// read-only PostgreSQL, Wikipedia search) and attaches it to anything
// that satisfies Registry.
package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Registry is where tool sets register their tools. Satisfied by
// *server.MCPServer directly and by wrappers that instrument handlers
// before delegating to one.
type Registry interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
}

var _ Registry = (*server.MCPServer)(nil)
