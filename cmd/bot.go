package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/safetransit/safetransit/internal/app"
	"github.com/safetransit/safetransit/internal/config"
	"github.com/safetransit/safetransit/internal/telegram"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Start the Telegram bot",
	Long: `Start the Telegram bot using long polling.

Requires TELEGRAM_BOT_TOKEN to be set. The bot shares the report store with
the dashboard server, so both can run at the same time.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBot(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(botCmd)
}

func runBot(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateBot(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	client, err := telegram.NewClient(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("creating telegram client: %w", err)
	}

	bot, err := telegram.NewBot(telegram.BotConfig{
		Client:      client,
		Sessions:    a.Sessions,
		Store:       a.Store,
		Advisor:     a.Advisor,
		Logger:      a.Logger,
		PollTimeout: time.Duration(cfg.PollTimeoutSecs) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}

	return bot.Run(ctx)
}
