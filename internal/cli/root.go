package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/apron/internal/logging"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking APRON_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("APRON_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the apron CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "apron",
		Short: "apron: runway and gate scheduling",
		Long:  "apron admits flights into a priority queue and assigns them runways and gates.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			format, err := logging.ParseFormat(flagLogFormat)
			if err != nil {
				return err
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), format)
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "apron server URL (or APRON_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newConsoleCmd(),
		newQueueCmd(),
		newAdmitCmd(),
		newScheduleCmd(),
		newAssignGateCmd(),
		newRunwaysCmd(),
		newGatesCmd(),
		newFlightsCmd(),
		newMovementsCmd(),
	)

	return root
}
