package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/questlog/questlog/internal/app"
	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
	"github.com/questlog/questlog/internal/ui"
)

var timerCmd = &cobra.Command{
	Use:     "timer",
	GroupID: "records",
	Short:   "Focus timer sessions",
	Long: `Track focus sessions. Session types and their planned length:
  focus  25m
  deep   50m
  break   5m

A session counts as completed when it ran at least its planned length.
Stopping a session linked to a task adds the elapsed minutes to the task.`,
}

var timerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName, _ := cmd.Flags().GetString("type")
		typ, err := schema.ParseSessionType(typeName)
		if err != nil {
			return err
		}
		taskID, err := optionalID(cmd, "task")
		if err != nil {
			return err
		}
		goalID, err := optionalID(cmd, "goal")
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			session, err := a.StartSession(ctx, typ, taskID, goalID)
			if errors.Is(err, app.ErrSessionActive) {
				return fmt.Errorf("%w (stop it with 'ql timer stop')", err)
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(session)
			}
			fmt.Printf("%s Started %s session (%s planned)\n",
				ui.RenderAccent("▶"), session.Type, ui.FormatDuration(session.Type.DefaultDuration()))
			return nil
		})
	},
}

var timerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running session",
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			session, err := a.StopSession(ctx, notes)
			if err != nil && session == nil {
				return err
			}
			if jsonOutput {
				if perr := printJSON(session); perr != nil {
					return perr
				}
				return err
			}
			mark := ui.RenderPass("✓")
			state := "completed"
			if !session.Completed {
				mark, state = ui.RenderWarn("■"), "stopped early"
			}
			fmt.Printf("%s %s session %s after %s\n", mark, session.Type, state, ui.FormatDuration(session.Duration))
			return err
		})
	},
}

var timerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			session, err := a.ActiveSession(ctx)
			if errors.Is(err, app.ErrNoActiveSession) {
				if jsonOutput {
					return printJSON(nil)
				}
				fmt.Println(ui.RenderMuted("No session running"))
				return nil
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(session)
			}

			elapsed := time.Since(session.StartedAt)
			planned := session.Type.DefaultDuration()
			fmt.Printf("%s %s session running for %s\n", ui.RenderAccent("▶"), session.Type, ui.FormatDuration(elapsed))
			if remaining := planned - elapsed; remaining > 0 {
				fmt.Printf("  %s left of %s\n", ui.FormatDuration(remaining), ui.FormatDuration(planned))
			} else {
				fmt.Printf("  %s planned length reached\n", ui.RenderPass("✓"))
			}
			if session.TaskID != nil {
				if task, err := a.Task(ctx, *session.TaskID); err == nil {
					fmt.Printf("  task: %s %s\n", ui.IDLabel(task.ID), task.Title)
				}
			}
			return nil
		})
	},
}

var timerListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter db.SessionFilter
		if s, _ := cmd.Flags().GetString("type"); s != "" {
			typ, err := schema.ParseSessionType(s)
			if err != nil {
				return err
			}
			filter.Type = typ
		}
		filter.Unsynced, _ = cmd.Flags().GetBool("unsynced")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			sessions, err := a.Sessions(ctx, filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(sessions)
			}
			printSessions(sessions)
			return nil
		})
	},
}

func optionalID(cmd *cobra.Command, flag string) (*schema.ID, error) {
	s, _ := cmd.Flags().GetString(flag)
	if s == "" {
		return nil, nil
	}
	id, err := parseIDArg(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func printSessions(sessions []*schema.TimerSession) {
	if len(sessions) == 0 {
		fmt.Println(ui.RenderMuted("No sessions"))
		return
	}
	for _, s := range sessions {
		length := "running"
		if !s.Active() {
			length = ui.FormatDuration(s.Duration)
		}
		synced := ""
		if !s.SyncedToBackend {
			synced = ui.RenderWarn(" (not synced)")
		}
		fmt.Printf("%s %-8s %-5s %s  %s%s\n",
			ui.Checkbox(s.Completed), ui.IDLabel(s.ID), s.Type,
			s.StartedAt.Local().Format("2006-01-02 15:04"), length, synced)
		if s.Notes != "" {
			fmt.Printf("    %s\n", ui.RenderMuted(s.Notes))
		}
	}
}

func init() {
	timerStartCmd.Flags().StringP("type", "t", "focus", "session type: focus, deep or break")
	timerStartCmd.Flags().String("task", "", "task id to credit")
	timerStartCmd.Flags().String("goal", "", "goal id")

	timerStopCmd.Flags().StringP("notes", "m", "", "notes for the session")

	timerListCmd.Flags().StringP("type", "t", "", "only this session type")
	timerListCmd.Flags().Bool("unsynced", false, "only sessions not yet pushed")
	timerListCmd.Flags().IntP("limit", "n", 0, "maximum number of sessions")

	timerCmd.AddCommand(timerStartCmd, timerStopCmd, timerStatusCmd, timerListCmd)
	rootCmd.AddCommand(timerCmd)
}
