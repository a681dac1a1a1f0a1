package main

import (
	"os"

	"github.com/spf13/cobra"

	"hermes/internal/app"
)

var watchCfg app.WatchConfig

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show realtime notifications for a session in the terminal",
	Long: `Watch connects to the websocket endpoint with a session token and lists
every event pushed to the user. The token is the one returned by the
OAuth callback; --save keeps it for later runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunWatch(watchCfg)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	flags := watchCmd.Flags()
	flags.StringVar(&watchCfg.ServerURL, "server", os.Getenv("HERMES_SERVER"), "server URL (http, https, ws or wss)")
	flags.StringVar(&watchCfg.Token, "token", os.Getenv("HERMES_TOKEN"), "session token")
	flags.StringVar(&watchCfg.UserID, "user", "", "user id to authenticate as (default: the token's user)")
	flags.StringVar(&watchCfg.SessionPath, "session-file", "", "session file (default: user config dir)")
	flags.BoolVar(&watchCfg.Save, "save", false, "save server and token to the session file")
}
