package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/me/nightsched/internal/logging"
	"github.com/spf13/cobra"
)

// Environment overrides for the persistent flag defaults.
const (
	envServer = "NIGHTSCHED_SERVER"
	envDB     = "NIGHTSCHED_DB"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagDB        string

	logger *slog.Logger
	client *Client
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// setup builds the shared logger and API client once flags are parsed.
// Logs go to the command's stderr so stdout stays a clean timeline.
func setup(cmd *cobra.Command, _ []string) error {
	format := strings.ToLower(flagLogFormat)
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown log format %q (want text or json)", flagLogFormat)
	}
	level := logging.ParseLevel(flagLogLevel)
	if flagDebug {
		level = slog.LevelDebug
	}
	logger = logging.NewLoggerWithWriter(level, format, cmd.ErrOrStderr())
	client = NewClient(flagServer, logger)
	return nil
}

// NewRootCmd creates the root cobra command for the nightsched CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nightsched",
		Short: "Event-driven night scheduling for observatory sites",
		Long: "nightsched replays a night of site events, recomputes the observing plan whenever\n" +
			"conditions change, and stitches the as-observed plan of every night and site.\n\n" +
			"run works offline; runs and show query a server started with serve.",
		PersistentPreRunE: setup,
		SilenceUsage:      true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagServer, "server", envOr(envServer, "http://localhost:8080"), "nightsched server URL (or "+envServer+")")
	pf.StringVar(&flagDB, "db", os.Getenv(envDB), "Database path (or "+envDB+", default ~/.nightsched/nightsched.db)")
	pf.BoolVar(&flagDebug, "debug", false, "Shorthand for --log-level debug")
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newRunsCmd(),
		newShowCmd(),
		newServeCmd(),
	)

	return root
}
