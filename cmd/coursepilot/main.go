// CLAUDE:SUMMARY CLI entry point for coursepilot: the run daemon plus client commands (status, enable, disable, settings, scan, pages) and offline classify.
// Command coursepilot drives online course pages in Chrome.
//
// Usage:
//
//	coursepilot run -c coursepilot.yaml       # daemon with HTTP control API
//	coursepilot run --url https://lms/course  # quick single page, monitoring on
//	coursepilot status <page>                 # ask the running daemon
//	coursepilot --db coursepilot.db disable <page>   # edit state without a daemon
//	coursepilot classify saved-page.html      # offline classifier check
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultAddr = "127.0.0.1:8765"

var (
	logLevel string
	addr     string
	dbPath   string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "coursepilot",
	Short: "Click through online courses: mark lessons complete and move to the next one",
	Long: `coursepilot scans course pages for "mark as complete" and "next" controls,
makes them clickable when the page disables them, and activates them no faster
than the configured delay. Settings and click statistics are persisted.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logLevel == "" {
			logLevel = envOr("COURSEPILOT_LOG_LEVEL", "info")
		}
		if addr == "" {
			addr = envOr("COURSEPILOT_HTTP_ADDR", defaultAddr)
		}
		logger = newLogger(logLevel)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default $COURSEPILOT_LOG_LEVEL or info)")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "control API address (default $COURSEPILOT_HTTP_ADDR or "+defaultAddr+")")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "edit the state database directly instead of calling the daemon")
}

func main() {
	// A missing .env is fine. Loaded before flags resolve their env defaults.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "coursepilot:", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
