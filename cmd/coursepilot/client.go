package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/coursepilot/connectivity"
	"github.com/hazyhaar/coursepilot/coursepilot"
	"github.com/hazyhaar/coursepilot/coursepilot/state"
)

const rpcTimeout = 15 * time.Second

// out is where client commands print; tests swap it.
var out io.Writer = os.Stdout

var statusCmd = &cobra.Command{
	Use:   "status <page>",
	Short: "Show monitoring state, settings and statistics of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if dbPath != "" {
			return withStateDB(func(d *coursepilot.StateDB) error {
				snap, err := d.Snapshot(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(snap)
			})
		}
		return rpc(cmd.Context(), coursepilot.ServiceStatus, map[string]any{"page_id": args[0]})
	},
}

func toggleCmd(use string, enabled bool, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <page>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath != "" {
				return withStateDB(func(d *coursepilot.StateDB) error {
					if err := d.SetEnabled(cmd.Context(), args[0], enabled); err != nil {
						return err
					}
					return printJSON(map[string]any{"success": true, "page_id": args[0], "enabled": enabled})
				})
			}
			return rpc(cmd.Context(), coursepilot.ServiceToggle, map[string]any{"page_id": args[0], "enabled": enabled})
		},
	}
}

var (
	settingsDelay    int
	settingsComplete bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings <page>",
	Short: "Change the click delay or the mark-as-complete setting of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var u state.SettingsUpdate
		if cmd.Flags().Changed("delay") {
			u.DelaySeconds = &settingsDelay
		}
		if cmd.Flags().Changed("mark-complete") {
			u.MarkAsComplete = &settingsComplete
		}
		if u.DelaySeconds == nil && u.MarkAsComplete == nil {
			return fmt.Errorf("nothing to change: pass --delay or --mark-complete")
		}
		if dbPath != "" {
			return withStateDB(func(d *coursepilot.StateDB) error {
				s, err := d.UpdateSettings(cmd.Context(), args[0], u)
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		}
		return rpc(cmd.Context(), coursepilot.ServiceSettings, map[string]any{
			"page_id":          args[0],
			"delay_seconds":    u.DelaySeconds,
			"mark_as_complete": u.MarkAsComplete,
		})
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <page>",
	Short: "Scan a page now (the click delay still applies)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return rpc(cmd.Context(), coursepilot.ServiceScan, map[string]any{"page_id": args[0]})
	},
}

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "List pages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dbPath != "" {
			return withStateDB(func(d *coursepilot.StateDB) error {
				ids, err := d.Pages(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(ids)
			})
		}
		return rpc(cmd.Context(), coursepilot.ServicePages, map[string]any{})
	},
}

func init() {
	settingsCmd.Flags().IntVar(&settingsDelay, "delay", 10, "minimum seconds between two clicks")
	settingsCmd.Flags().BoolVar(&settingsComplete, "mark-complete", true, "click mark-as-complete controls before next")

	rootCmd.AddCommand(
		statusCmd,
		toggleCmd("enable", true, "Start monitoring a page"),
		toggleCmd("disable", false, "Stop monitoring a page"),
		settingsCmd,
		scanCmd,
		pagesCmd,
	)
}

// baseURL turns a listen address into the daemon's /rpc base URL.
func baseURL(a string) string {
	if !strings.HasPrefix(a, "http://") && !strings.HasPrefix(a, "https://") {
		if strings.HasPrefix(a, ":") {
			a = "127.0.0.1" + a
		}
		a = "http://" + a
	}
	return strings.TrimRight(a, "/") + "/rpc"
}

// remoteRouter routes every coursepilot service to the daemon at addr.
func remoteRouter() *connectivity.Router {
	l := logger
	if l == nil {
		l = slog.Default()
	}
	router := connectivity.New(connectivity.WithLogger(l), connectivity.WithMiddleware(connectivity.Logging(l)))
	for _, svc := range []string{
		coursepilot.ServiceStatus,
		coursepilot.ServiceToggle,
		coursepilot.ServiceSettings,
		coursepilot.ServiceScan,
		coursepilot.ServicePages,
	} {
		router.RegisterRemote(svc, connectivity.HTTPClient(baseURL(addr), svc, rpcTimeout))
	}
	return router
}

func rpc(ctx context.Context, service string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := remoteRouter().Call(ctx, service, body)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, resp, "", "  "); err != nil {
		_, err = out.Write(resp)
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(out)
	return err
}

func withStateDB(fn func(*coursepilot.StateDB) error) error {
	d, err := coursepilot.OpenStateDB(dbPath, logger)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}

func printJSON(v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
