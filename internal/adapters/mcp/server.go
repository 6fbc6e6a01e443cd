// Package mcp exposes the capability registry over the stdio MCP transport,
// for clients (like Claude Desktop) that spawn the server as a local process
// instead of connecting to the SSE endpoint.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	mcptelegram "github.com/1F47E/mcp-telegram"
	"github.com/1F47E/mcp-telegram/internal/capability"
)

// Server wraps the capability registry and exposes it as an MCP server.
type Server struct {
	capabilities *capability.Registry
	mcpServer    *server.MCPServer
	log          *slog.Logger
}

// NewServer creates a new MCP server instance over the given registry.
func NewServer(capabilities *capability.Registry, log *slog.Logger) *Server {
	s := &Server{
		capabilities: capabilities,
		mcpServer:    server.NewMCPServer(mcptelegram.Name, mcptelegram.Version),
		log:          log.With("component", "mcp"),
	}
	s.registerTools()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	notifyTool := mcp.NewTool(capability.NotifyText,
		mcp.WithDescription("Send a text message via Telegram"),
		mcp.WithString("message", mcp.Required(),
			mcp.Description("The message text to send. May contain Telegram's HTML tag subset.")),
		mcp.WithString("parse_mode",
			mcp.Description("Text formatting mode"),
			mcp.Enum("Markdown", "MarkdownV2", "HTML")),
	)
	s.mcpServer.AddTool(notifyTool, s.handleNotify)
}

func (s *Server) handleNotify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := s.capabilities.Dispatch(ctx, capability.NotifyText, request.GetArguments())
	if err != nil {
		s.log.Warn("notify failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
