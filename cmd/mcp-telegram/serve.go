package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpAdapter "github.com/1F47E/mcp-telegram/internal/adapters/http"
	mcpAdapter "github.com/1F47E/mcp-telegram/internal/adapters/mcp"
	"github.com/1F47E/mcp-telegram/internal/capability"
	"github.com/1F47E/mcp-telegram/internal/config"
	"github.com/1F47E/mcp-telegram/internal/logging"
	"github.com/1F47E/mcp-telegram/internal/metrics"
	"github.com/1F47E/mcp-telegram/internal/notifier"
	"github.com/1F47E/mcp-telegram/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Starts the Telegram MCP server.

Supported Transports:
- sse (default): Server-Sent Events over HTTP. Clients connect to /sse and
  post JSON-RPC requests to /message.
- stdio: Standard Input/Output. Ideal for local process integration.`,
	Run: func(cmd *cobra.Command, args []string) {
		transport, _ := cmd.Flags().GetString("transport")

		// Configuration failure is fatal; no listener is bound.
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("configuration error: %v", err)
		}

		logger := logging.FromDebug(cfg.Debug)

		// Verifies the token with one getMe call, matching startup behavior:
		// a broken credential fails the process, not the first request.
		tg, err := notifier.NewTelegram(cfg.BotToken, cfg.ChatID, logger)
		if err != nil {
			logger.Error("failed to connect to Telegram", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to Telegram", "chat_id", cfg.ChatID)

		m := metrics.New()
		capabilities := capability.NewRegistry(tg, m, logger)

		switch transport {
		case "sse":
			sessions := session.NewRegistry(logger)
			srv := httpAdapter.NewServer(capabilities, sessions, m, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.Serve(ctx, cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server execution failed", "error", err)
				os.Exit(1)
			}
			logger.Info("server stopped gracefully")

		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout.
			log.SetOutput(os.Stderr)
			logger.Info("starting MCP server (stdio)")
			if err := mcpAdapter.NewServer(capabilities, logger).ServeStdio(); err != nil {
				logger.Error("server execution failed", "error", err)
				os.Exit(1)
			}

		default:
			log.Fatalf("unknown transport: %s. Supported: sse, stdio", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("transport", "sse", "Transport protocol to use: 'sse' or 'stdio'")
}
