// Package cmd contains the CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "safetransit",
	Short: "SafeTransit Padova - transit safety reporting service",
	Long: `SafeTransit Padova collects transit safety reports through a Telegram
bot and a web dashboard, scores stop safety from crowd levels and reported
concerns, and optionally enriches reports with AI analysis.

Run "safetransit serve" for the dashboard server or "safetransit bot" for
the Telegram bot. Both can run side by side against the same database.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
