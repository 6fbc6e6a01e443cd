package main

import (
	"fmt"

	"github.com/spf13/cobra"

	mcptelegram "github.com/1F47E/mcp-telegram"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of mcp-telegram",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcp-telegram version %s\n", mcptelegram.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
