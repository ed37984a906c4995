package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/coursepilot/coursepilot"
)

var (
	runConfig   string
	runURL      string
	runPageID   string
	runHTTP     string
	runMCPStdio bool
	runMode     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pilot daemon",
	Long: `Launch Chrome, open the configured pages and serve the control API.

With --url a single page is opened with monitoring on; otherwise pages come
from the YAML file given with --config.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runConfig, "config", "c", "", "path to coursepilot.yaml")
	runCmd.Flags().StringVar(&runURL, "url", "", "drive a single course page")
	runCmd.Flags().StringVar(&runPageID, "page", "main", "page id used with --url")
	runCmd.Flags().StringVar(&runHTTP, "http", "", "control API listen address (empty keeps the config value)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "browser mode: headless, headful, visible")
	runCmd.Flags().BoolVar(&runMCPStdio, "mcp-stdio", false, "also serve MCP over stdin/stdout")
	rootCmd.AddCommand(runCmd)
}

func loadRunConfig(cmd *cobra.Command) (*coursepilot.Config, error) {
	var cfg *coursepilot.Config
	if runConfig != "" {
		c, err := coursepilot.LoadConfigFile(runConfig)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = coursepilot.DefaultConfig()
	}
	cfg.ApplyEnv(os.Getenv)

	if runURL != "" {
		cfg.Pages = append(cfg.Pages, coursepilot.PageConfig{ID: runPageID, URL: runURL, StartEnabled: ptrBool(true)})
	}
	if cmd.Flags().Changed("http") {
		cfg.HTTP.Addr = runHTTP
	} else if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = addr
	}
	if runMode != "" {
		cfg.Browser.Mode = coursepilot.BrowserMode(runMode)
	}
	if len(cfg.Pages) == 0 {
		logger.Warn("coursepilot: no pages configured; open them through the API")
	}
	return cfg, cfg.Validate()
}

func serve(ctx context.Context, cfg *coursepilot.Config) error {
	// With --mcp-stdio, stdout carries MCP frames and must stay free of events.
	var sinks []coursepilot.Sink
	if runMCPStdio {
		kept := cfg.Sinks[:0]
		for _, sc := range cfg.Sinks {
			if sc.Type == "stdout" {
				logger.Warn("coursepilot: stdout sink disabled by --mcp-stdio")
				continue
			}
			kept = append(kept, sc)
		}
		cfg.Sinks = kept
	} else if len(cfg.Sinks) == 0 {
		sinks = append(sinks, coursepilot.NewStdoutSink(nil))
	}

	p := coursepilot.New(cfg, logger, coursepilot.WithSinks(sinks...))
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer p.Stop()

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           p.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			logger.Info("coursepilot: control API listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("coursepilot: http server", "error", err)
			}
		}()
	}

	if runMCPStdio {
		go func() {
			if err := p.NewMCPServer().Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("coursepilot: mcp stdio", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("coursepilot: shutting down")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("coursepilot: shutdown", "error", err)
		}
	}
	return nil
}

func ptrBool(v bool) *bool { return &v }
