// Package mcpserver exposes the tutor's tool catalog as an MCP server so
// external assistants can call the calculator, solver and formula table.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"tutor-dispatch/internal/domain"
)

// ServerName is advertised during the MCP handshake.
const ServerName = "tutor-dispatch"

// ToolSource lists the tools to publish.
type ToolSource interface {
	List() []domain.Tool
}

// New builds an MCP server with one MCP tool per catalog tool.
func New(tools ToolSource, version string, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Math and physics helper tools: calculator, equation_solver, formula_lookup."),
	)
	for _, t := range tools.List() {
		schema := t.Schema()
		s.AddTool(mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.Parameters), handler(t, logger))
	}
	return s
}

// ServeStdio serves s over stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func handler(t domain.Tool, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		res, err := t.Execute(ctx, raw)
		if err != nil {
			logger.Warn("mcp tool failed", "tool", t.Name(), "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res.IsError {
			return mcp.NewToolResultError(res.Content), nil
		}
		return mcp.NewToolResultText(res.Content), nil
	}
}
