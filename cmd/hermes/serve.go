package main

import (
	"github.com/spf13/cobra"

	"hermes/internal/app"
)

var serveFlags struct {
	addr     string
	driver   string
	dsn      string
	presence string
	sessions string
	logLevel string
	logFmt   string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadServerConfig(cmd)
		if err != nil {
			return err
		}
		handle, err := app.RunServer(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		err = handle.Wait()
		logger.Info().Msg("hermes stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	flags := serveCmd.Flags()
	flags.StringVar(&serveFlags.addr, "addr", "", "listen address (default :8080 or :$PORT)")
	flags.StringVar(&serveFlags.presence, "presence", "", "presence policy: single or multi")
	flags.StringVar(&serveFlags.sessions, "session-store", "", "session store: sql or redis")
	addStoreFlags(serveCmd)
	addLogFlags(serveCmd)
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serveFlags.driver, "db-driver", "", "database driver: sqlite or postgres")
	cmd.Flags().StringVar(&serveFlags.dsn, "db", "", "database path or DSN")
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&serveFlags.logFmt, "log-format", "", "log format: console or json")
}

// applyServerFlags overrides cfg with the flags the user actually set.
func applyServerFlags(cmd *cobra.Command, cfg *app.ServerConfig) {
	set := func(name string, dst *string, value string) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*dst = value
		}
	}
	set("addr", &cfg.Addr, serveFlags.addr)
	set("presence", &cfg.PresencePolicy, serveFlags.presence)
	set("session-store", &cfg.SessionStore, serveFlags.sessions)
	set("db-driver", &cfg.Database.Driver, serveFlags.driver)
	set("db", &cfg.Database.DSN, serveFlags.dsn)
	set("log-level", &cfg.Log.Level, serveFlags.logLevel)
	set("log-format", &cfg.Log.Format, serveFlags.logFmt)
}
