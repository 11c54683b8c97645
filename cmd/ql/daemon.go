package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/questlog/questlog/internal/daemon"
	"github.com/questlog/questlog/internal/dashboard"
	"github.com/questlog/questlog/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Sync automatically in the foreground",
	Long: `Run the sync daemon in the foreground.

The daemon will:
  1. Sync everything once at startup
  2. Watch the local database and sync shortly after writes settle
  3. Sync on a fixed interval regardless of writes

With --dashboard, the live WebSocket dashboard runs alongside it.
Press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		var server *dashboard.Server
		if withDashboard {
			server, err = startDashboard(cmd, rt)
			if err != nil {
				return err
			}
			defer server.Stop()
		} else if err := rt.buildApp(nil); err != nil {
			return err
		}

		d, err := daemon.NewWithConfig(rt.app, rt.store.Path(), &daemon.Config{
			Interval:         cfg.Daemon.Interval,
			DebounceInterval: cfg.Daemon.Debounce,
			SyncOnStart:      true,
			Logger:           rt.sink.Logger("daemon"),
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Store: %s\n", rt.store.Path())
		fmt.Printf("   Backend: %s\n", cfg.API.BaseURL)
		fmt.Printf("   Interval: %v, debounce: %v\n", cfg.Daemon.Interval, cfg.Daemon.Debounce)
		if !rt.app.Authenticated() {
			fmt.Printf("   %s not logged in; syncs are skipped until you run 'ql auth login'\n", ui.RenderWarn("⚠"))
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Start(ctx); err != nil {
			return fmt.Errorf("daemon stopped with error: %w", err)
		}
		return nil
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Serve the live WebSocket dashboard",
	Long: `Start a WebSocket dashboard showing the local store in real time.

Messages sent to clients:
- task_update, goal_update, session_update: a record changed
- sync_state: an entity started or finished syncing
- sync_complete: a sync finished, with counts and errors
- stats: record counts

Without the daemon nothing in this process changes records, so stats are
refreshed on an interval. Use 'ql daemon --dashboard' for sync events.

Connect with a WebSocket client:
  ws://localhost:7420/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		server, err := startDashboard(cmd, rt)
		if err != nil {
			return err
		}
		defer server.Stop()

		fmt.Println("\nPress Ctrl+C to stop...")
		refresh, _ := cmd.Flags().GetDuration("refresh")
		if refresh <= 0 {
			refresh = 5 * time.Second
		}
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nShutting down dashboard server...")
				return nil
			case <-ticker.C:
				rt.dashboard.RefreshStats(ctx)
			}
		}
	},
}

// startDashboard starts the dashboard server and builds the app with the
// dashboard handler as its notifier.
func startDashboard(cmd *cobra.Command, rt *runtime) (*dashboard.Server, error) {
	port := cfg.Dashboard.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}
	server := dashboard.NewServer(&dashboard.Config{
		Host:   "127.0.0.1",
		Port:   port,
		Logger: rt.sink.Logger("dashboard"),
	})
	rt.dashboard = dashboard.NewHandler(server, rt.store, rt.sink.Quiet("dashboard"))
	if err := rt.buildApp(rt.dashboard); err != nil {
		return nil, err
	}
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("failed to start dashboard: %w", err)
	}

	addr := server.GetAddr()
	fmt.Printf("Dashboard server started on http://%s\n", addr)
	fmt.Printf("WebSocket endpoint: ws://%s/ws\n", addr)
	fmt.Printf("Health check: http://%s/health\n", addr)
	return server, nil
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "also serve the live dashboard")
	daemonCmd.Flags().IntP("port", "p", 0, "dashboard port (default from dashboard.port)")

	dashboardCmd.Flags().IntP("port", "p", 0, "port to listen on (default from dashboard.port)")
	dashboardCmd.Flags().Duration("refresh", 5*time.Second, "stats refresh interval")

	rootCmd.AddCommand(daemonCmd, dashboardCmd)
}
