package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-search-scraper/internal/config"
	"github.com/maltedev/amazon-search-scraper/internal/logger"
)

var (
	cfg *config.Config
	log *slog.Logger

	logLevel  string
	logFormat string
	transport string
)

var rootCmd = &cobra.Command{
	Use:           "search-scraper",
	Short:         "Scrapes Amazon search result pages into JSON files and Postgres.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		flags := cmd.Flags()
		if flags.Changed("log-level") {
			loaded.Logging.Level = logLevel
		}
		if flags.Changed("log-format") {
			loaded.Logging.Format = logFormat
		}
		if flags.Changed("transport") {
			loaded.Scraper.Transport = transport
		}

		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		l, err := logger.New(loaded.Logging.Level, loaded.Logging.Format, os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(l)

		cfg, log = loaded, l
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error.")
	pf.StringVar(&logFormat, "log-format", "text", "Log format: text or json.")
	pf.StringVar(&transport, "transport", config.TransportHTTP, "Page transport: http or browser.")
}

// ExecuteContext runs the CLI and returns the process exit code.
func ExecuteContext(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
