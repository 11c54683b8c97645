package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/questlog/questlog/internal/app"
	"github.com/questlog/questlog/internal/sync"
	"github.com/questlog/questlog/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:       "sync [tasks|goals|sessions|all]",
	GroupID:   "sync",
	Short:     "Push local records to the backend",
	ValidArgs: []string{"tasks", "goals", "sessions", "all"},
	Long: `Push every local record of the given type (default: all) to the backend.

Records with a backend id are updated; local-only records are created and
take the id the backend assigns. A failure on one record does not stop the
others; the command exits non-zero if any record failed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entities, err := entitiesArg(args)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if !a.Authenticated() {
				return fmt.Errorf("%w: run 'ql auth login' first", sync.ErrUnauthenticated)
			}
			var (
				results []*sync.Result
				runErr  error
			)
			if len(entities) == len(sync.Entities()) {
				results, runErr = a.SyncAll(ctx)
			} else {
				r, err := a.Sync(ctx, entities[0])
				results, runErr = []*sync.Result{r}, err
			}
			return reportResults("Synced", results, runErr)
		})
	},
}

var pullCmd = &cobra.Command{
	Use:       "pull [tasks|goals|sessions|all]",
	GroupID:   "sync",
	Short:     "Copy backend records into the local store",
	ValidArgs: []string{"tasks", "goals", "sessions", "all"},
	Args:      cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entities, err := entitiesArg(args)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if !a.Authenticated() {
				return fmt.Errorf("%w: run 'ql auth login' first", sync.ErrUnauthenticated)
			}
			var (
				results []*sync.Result
				errs    []error
			)
			for _, e := range entities {
				r, err := a.Pull(ctx, e)
				if r != nil {
					results = append(results, r)
				}
				if err != nil {
					errs = append(errs, err)
				}
			}
			return reportResults("Pulled", results, errors.Join(errs...))
		})
	},
}

var mergedCmd = &cobra.Command{
	Use:       "merged [tasks|goals|sessions]",
	GroupID:   "sync",
	Short:     "Show backend records plus local records the backend lacks",
	ValidArgs: []string{"tasks", "goals", "sessions"},
	Long: `Show the merged view: everything the backend returns, followed by local
records the backend does not have yet. When logged out or offline this is
just the local store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity := sync.EntityTasks
		if len(args) == 1 {
			e, err := sync.ParseEntity(args[0])
			if err != nil {
				return err
			}
			entity = e
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			switch entity {
			case sync.EntityGoals:
				goals, err := a.MergedGoals(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(goals)
				}
				printGoals(goals)
			case sync.EntitySessions:
				sessions, err := a.MergedSessions(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(sessions)
				}
				printSessions(sessions)
			default:
				tasks, err := a.MergedTasks(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(tasks)
				}
				printTasks(tasks)
			}
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show store, login and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			st, err := a.Status(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(st)
			}

			fmt.Printf("\n%s Questlog Status\n\n", ui.RenderAccent("📊"))
			fmt.Printf("Store: %s", cfg.Store.Path)
			if info, err := os.Stat(cfg.Store.Path); err == nil {
				fmt.Printf(" (%s)", formatSize(info.Size()))
			}
			fmt.Println()
			fmt.Printf("Backend: %s\n", cfg.API.BaseURL)
			if st.Authenticated {
				fmt.Printf("Login: %s\n", ui.RenderPass("logged in"))
			} else {
				fmt.Printf("Login: %s (run 'ql auth login')\n", ui.RenderWarn("not logged in"))
			}
			fmt.Println()

			c := st.Counts
			fmt.Printf("Tasks:    %d (%d completed, %d local only)\n", c.Tasks, c.CompletedTasks, c.LocalTasks)
			fmt.Printf("Goals:    %d (%d local only)\n", c.Goals, c.LocalGoals)
			fmt.Printf("Sessions: %d (%d local only)\n", c.Sessions, c.LocalSessions)
			if st.Active != nil {
				fmt.Printf("Timer:    %s session running\n", st.Active.Type)
			}
			fmt.Println()
			return nil
		})
	},
}

// entitiesArg parses an optional entity argument; none or "all" means every
// entity type.
func entitiesArg(args []string) ([]sync.Entity, error) {
	if len(args) == 0 || args[0] == "all" {
		return sync.Entities(), nil
	}
	e, err := sync.ParseEntity(args[0])
	if err != nil {
		return nil, err
	}
	return []sync.Entity{e}, nil
}

// reportResults prints per-entity counts and every failure, then turns
// partial failure into a non-zero exit.
func reportResults(verb string, results []*sync.Result, runErr error) error {
	if jsonOutput {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r == nil {
				continue
			}
			if r.Success() {
				fmt.Printf("%s %s %d %s in %v\n", ui.RenderPass("✓"), verb, r.Synced, r.Entity, r.Duration.Round(time.Millisecond))
				continue
			}
			fmt.Printf("%s %s %d %s, %d failed\n", ui.RenderWarn("⚠"), verb, r.Synced, r.Entity, len(r.Errors))
			for _, msg := range r.Errors {
				fmt.Printf("   %s %s\n", ui.RenderFail("✗"), msg)
			}
		}
	}

	if runErr == nil {
		return nil
	}
	var partial *sync.PartialError
	if errors.As(runErr, &partial) {
		return &exitError{code: 2}
	}
	return runErr
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func init() {
	rootCmd.AddCommand(syncCmd, pullCmd, mergedCmd, statusCmd)
}
