package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	intrnl "hermes/internal"
	"hermes/internal/app"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "hermes",
	Short: "Chat backend with OAuth logins and realtime notifications",
	Long: `Hermes serves the chat REST API and a websocket endpoint that pushes
friend requests, new chats and messages to online users.

Configuration is read from --config (YAML), then .env and the
environment, then command-line flags.`,
	SilenceUsage: true,
	Version:      intrnl.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file (YAML)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "hermes: %v\n", err)
		os.Exit(1)
	}
}

// loadServerConfig runs every configuration stage, flags included, and
// builds the root logger from the result.
func loadServerConfig(cmd *cobra.Command) (*app.ServerConfig, zerolog.Logger, error) {
	cfg, err := app.LoadServerConfig(configFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	applyServerFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := app.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}
