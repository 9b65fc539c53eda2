// Package mcp serves the tool registry to MCP clients over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vriveras/openclaw/internal/tools"
)

// Server adapts the tool registry to the MCP protocol.
type Server struct {
	registry *tools.Registry
	mcp      *server.MCPServer
}

// NewServer builds an MCP server exposing every registered tool.
func NewServer(registry *tools.Registry, version string) (*Server, error) {
	s := server.NewMCPServer("openclaw-memory", version)

	for _, name := range registry.List() {
		tool, _ := registry.Get(name)

		schema, err := json.Marshal(tool.Parameters())
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", name, err)
		}

		mcpTool := mcpgo.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
		s.AddTool(mcpTool, handlerFor(registry, tool.Name()))
	}

	return &Server{registry: registry, mcp: s}, nil
}

// handlerFor routes an MCP tool call through the registry.
func handlerFor(registry *tools.Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		result := registry.Execute(ctx, name, args)
		if result.IsError {
			return mcpgo.NewToolResultError(result.ForLLM), nil
		}
		return mcpgo.NewToolResultText(result.ForLLM), nil
	}
}

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	slog.Info("mcp server starting", "tools", len(s.registry.List()))
	return server.ServeStdio(s.mcp)
}
