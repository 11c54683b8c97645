package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/questlog/questlog/internal/loadtest"
	"github.com/questlog/questlog/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "advanced",
	Short:   "Measure store and sync performance on generated data",
	Long: `Measure store and sync performance on generated data.

Creates a throwaway database with the requested number of records, runs
concurrent readers against it and records query latency, then pushes every
record to an in-memory backend and times the full sync. Your own database
and backend are never touched.

Examples:
  # Defaults: 1000 tasks, 20 readers
  ql bench

  # Bigger store, more readers
  ql bench --tasks 5000 --readers 50

  # Skip the sync phase
  ql bench --no-sync --json
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, _ := cmd.Flags().GetInt("tasks")
		goals, _ := cmd.Flags().GetInt("goals")
		sessions, _ := cmd.Flags().GetInt("sessions")
		completed, _ := cmd.Flags().GetFloat64("completed")
		readers, _ := cmd.Flags().GetInt("readers")
		queries, _ := cmd.Flags().GetInt("queries")
		noSync, _ := cmd.Flags().GetBool("no-sync")

		if tasks <= 0 {
			return fmt.Errorf("--tasks must be positive")
		}
		if readers <= 0 || queries <= 0 {
			return fmt.Errorf("--readers and --queries must be positive")
		}

		dir, err := os.MkdirTemp("", "ql-bench-")
		if err != nil {
			return fmt.Errorf("failed to create scratch directory: %w", err)
		}
		defer os.RemoveAll(dir)

		sink, err := openSink()
		if err != nil {
			return err
		}
		defer sink.Close()

		ctx := cmd.Context()
		if !jsonOutput {
			fmt.Printf("Seeding %d tasks, %d goals, %d sessions...\n", tasks, goals, sessions)
		}
		f, err := loadtest.NewFixture(ctx, dir, loadtest.Options{
			Tasks:        tasks,
			Goals:        goals,
			Sessions:     sessions,
			CompletedPct: completed,
			Logger:       sink.Quiet("bench"),
		})
		if err != nil {
			return err
		}
		defer f.Close()

		stats, err := f.RunConcurrentQueries(ctx, readers, queries)
		if err != nil {
			return err
		}

		var report *loadtest.SyncReport
		if !noSync {
			report, err = f.RunSync(ctx)
			if err != nil {
				return err
			}
		}

		if jsonOutput {
			return printJSON(struct {
				Queries *loadtest.LatencyStats `json:"queries"`
				Sync    *loadtest.SyncReport   `json:"sync,omitempty"`
			}{stats, report})
		}

		fmt.Printf("\n%s %d readers x %d queries\n", ui.RenderHeader("Store"), readers, queries)
		stats.Fprint(os.Stdout)

		if report != nil {
			fmt.Printf("\n%s\n", ui.RenderHeader("Sync"))
			fmt.Printf("  Records:  %d synced, %d failed\n", report.Synced, report.Failed)
			fmt.Printf("  Requests: %d\n", report.Requests)
			fmt.Printf("  Duration: %v\n", report.Duration)
			if report.Duration > 0 && report.Synced > 0 {
				fmt.Printf("  Rate:     %.1f records/s\n", float64(report.Synced)/report.Duration.Seconds())
			}
			if report.Failed > 0 {
				fmt.Printf("\n%s %d records failed to sync\n", ui.RenderWarn("⚠"), report.Failed)
			}
		}
		return nil
	},
}

func init() {
	benchCmd.Flags().Int("tasks", 1000, "number of tasks to generate")
	benchCmd.Flags().Int("goals", 50, "number of goals to generate")
	benchCmd.Flags().Int("sessions", 200, "number of timer sessions to generate")
	benchCmd.Flags().Float64("completed", 0.3, "share of tasks marked completed (0.0-1.0)")
	benchCmd.Flags().Int("readers", 20, "number of concurrent readers")
	benchCmd.Flags().Int("queries", 10, "queries per reader")
	benchCmd.Flags().Bool("no-sync", false, "skip the sync phase")
	rootCmd.AddCommand(benchCmd)
}
