// Package ctl implements the schedctl command line client for the gpusched
// debug/control API.
package ctl

import (
	"log/slog"
	"os"

	"github.com/me/gpusched/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking GPUSCHED_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("GPUSCHED_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the schedctl CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "schedctl",
		Short: "schedctl is the control client for the gpusched scheduler daemon",
		Long:  "schedctl submits synthetic atoms, inspects live scheduler state, and queries atom lifecycle traces.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(flagLogLevel, flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "gpusched server URL (or GPUSCHED_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newStatusCmd(),
		newAtomsCmd(),
		newSubmitCmd(),
		newConnectCmd(),
		newSignalCmd(),
		newCancelCmd(),
	)

	return root
}
