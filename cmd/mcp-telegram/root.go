package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mcp-telegram",
	Short: "MCP server that sends Telegram notifications",
	Long: `mcp-telegram is an MCP (Model Context Protocol) server exposing one tool:
sending a text message to a fixed Telegram chat. The bot token and the
destination chat are configured via TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
