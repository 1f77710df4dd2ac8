// Package mcp exposes the search tool over the Model Context Protocol.
package mcp

import (
	"context"
	"net/http"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	tooluc "github.com/kailas-cloud/dirsearch/internal/usecase/tool"
)

const serverName = "dirsearch"

// ToolCaller runs the search tool on behalf of an agent.
type ToolCaller interface {
	Call(ctx context.Context, agent string, args tooluc.Args) (tooluc.Response, error)
}

// Server builds MCP servers bound to one agent identity each.
type Server struct {
	tool    ToolCaller
	version string
	logger  *zap.Logger
}

// New creates an MCP front for the tool adapter.
func New(tool ToolCaller, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{tool: tool, version: version, logger: logger}
}

// ForAgent returns an MCP server whose search tool always runs as agent.
func (s *Server) ForAgent(agent string) *gomcp.Server {
	srv := gomcp.NewServer(&gomcp.Implementation{Name: serverName, Version: s.version}, nil)
	gomcp.AddTool(srv, &gomcp.Tool{
		Name:        tooluc.Name,
		Description: tooluc.Description,
	}, func(ctx context.Context, _ *gomcp.CallToolRequest, args tooluc.Args) (*gomcp.CallToolResult, tooluc.Response, error) {
		resp, err := s.tool.Call(ctx, agent, args)
		if err != nil {
			// Reported to the model as a tool error carrying the code and message.
			return nil, tooluc.Response{}, err
		}
		return nil, resp, nil
	})
	return srv
}

// Handler serves MCP over streamable HTTP. The agent identity is read from header on every request,
// so the handler runs stateless.
func (s *Server) Handler(header string) http.Handler {
	return gomcp.NewStreamableHTTPHandler(s.serverFor(header), &gomcp.StreamableHTTPOptions{Stateless: true})
}

func (s *Server) serverFor(header string) func(*http.Request) *gomcp.Server {
	return func(r *http.Request) *gomcp.Server {
		agent := strings.TrimSpace(r.Header.Get(header))
		if agent == "" {
			s.logger.Warn("MCP request without agent identity", zap.String("header", header))
			return nil
		}
		return s.ForAgent(agent)
	}
}

// ServeStdio serves one MCP session over stdin/stdout until ctx ends or the client disconnects.
func (s *Server) ServeStdio(ctx context.Context, agent string) error {
	s.logger.Info("Serving MCP over stdio", zap.String("agent", agent))
	return s.ForAgent(agent).Run(ctx, &gomcp.StdioTransport{}) //nolint:wrapcheck // session end reason
}
