package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/questlog/questlog/internal/app"
	"github.com/questlog/questlog/internal/dates"
	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
	"github.com/questlog/questlog/internal/ui"
)

var goalCmd = &cobra.Command{
	Use:     "goal",
	GroupID: "records",
	Short:   "Manage goals",
}

var goalAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a goal",
	Long: `Add a goal. When logged in, the goal is pushed to the backend right away;
if that fails it stays local until the next sync.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := &schema.Goal{Title: strings.Join(args, " ")}
		goal.Description, _ = cmd.Flags().GetString("desc")
		goal.Category, _ = cmd.Flags().GetString("category")
		if s, _ := cmd.Flags().GetString("target"); s != "" {
			target, err := dates.ParseDay(s, time.Now())
			if err != nil {
				return err
			}
			target = dates.UTCDay(target)
			goal.TargetDate = &target
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			created, err := a.CreateGoal(ctx, goal)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(created)
			}
			fmt.Printf("%s Added goal %s: %s\n", ui.RenderPass("✓"), ui.IDLabel(created.ID), created.Title)
			if !created.ID.IsBackend() && a.Authenticated() {
				fmt.Printf("  %s saved locally only; it will be pushed on the next sync\n", ui.RenderWarn("⚠"))
			}
			return nil
		})
	},
}

var goalListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List local goals",
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter db.GoalFilter
		if all, _ := cmd.Flags().GetBool("all"); !all {
			open := false
			filter.Completed = &open
		}
		filter.Category, _ = cmd.Flags().GetString("category")
		filter.LocalOnly, _ = cmd.Flags().GetBool("local")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			goals, err := a.Goals(ctx, filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(goals)
			}
			printGoals(goals)
			return nil
		})
	},
}

var goalProgressCmd = &cobra.Command{
	Use:   "progress <id> [percent]",
	Short: "Set or recompute goal progress",
	Long: `Set a goal's progress by hand (0-100), or without a percent recompute it
from the share of linked tasks that are completed.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var goal *schema.Goal
			if len(args) == 2 {
				pct, err := strconv.Atoi(strings.TrimSuffix(args[1], "%"))
				if err != nil {
					return fmt.Errorf("invalid percent %q", args[1])
				}
				goal, err = a.SetGoalProgress(ctx, id, pct)
				if err != nil {
					return err
				}
			} else {
				goal, err = a.RecomputeGoalProgress(ctx, id)
				if err != nil {
					return err
				}
			}
			if jsonOutput {
				return printJSON(goal)
			}
			fmt.Printf("%s %s  %s\n", ui.IDLabel(goal.ID), goal.Title, ui.ProgressBar(goal.Progress, 20))
			return nil
		})
	},
}

var goalLinkCmd = &cobra.Command{
	Use:   "link <goal-id> <task-id>",
	Short: "Link a task to a goal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		goalID, err := parseIDArg(args[0])
		if err != nil {
			return err
		}
		taskID, err := parseIDArg(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			goal, err := a.LinkTask(ctx, goalID, taskID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(goal)
			}
			fmt.Printf("%s Linked task %s to goal %s (%d tasks, %d%%)\n",
				ui.RenderPass("✓"), ui.IDLabel(taskID), ui.IDLabel(goal.ID), len(goal.TaskIDs), goal.Progress)
			return nil
		})
	},
}

var goalRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a goal",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			goal, err := a.Goal(ctx, id)
			if err != nil {
				return err
			}
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				ok, err := confirm(fmt.Sprintf("Delete goal %q?", goal.Title))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Cancelled")
					return nil
				}
			}
			if err := a.DeleteGoal(ctx, id); err != nil {
				return err
			}
			fmt.Printf("%s Deleted goal %s: %s\n", ui.RenderPass("✓"), ui.IDLabel(id), goal.Title)
			return nil
		})
	},
}

func printGoals(goals []*schema.Goal) {
	if len(goals) == 0 {
		fmt.Println(ui.RenderMuted("No goals"))
		return
	}
	for _, g := range goals {
		line := fmt.Sprintf("%s %-8s %s  %s", ui.Checkbox(g.Completed), ui.IDLabel(g.ID), ui.ProgressBar(g.Progress, 10), g.Title)
		var extra []string
		if g.Category != "" {
			extra = append(extra, "#"+g.Category)
		}
		if g.TargetDate != nil {
			extra = append(extra, "target "+g.TargetDate.Format("2006-01-02"))
		}
		if n := len(g.TaskIDs); n > 0 {
			extra = append(extra, fmt.Sprintf("%d tasks", n))
		}
		if len(extra) > 0 {
			line += "  " + ui.RenderMuted(strings.Join(extra, "  "))
		}
		fmt.Println(line)
	}
}

func init() {
	goalAddCmd.Flags().StringP("desc", "d", "", "description")
	goalAddCmd.Flags().StringP("category", "c", "", "category")
	goalAddCmd.Flags().String("target", "", `target date, e.g. 2026-12-31 or "next month"`)

	goalListCmd.Flags().BoolP("all", "a", false, "include completed goals")
	goalListCmd.Flags().StringP("category", "c", "", "only this category")
	goalListCmd.Flags().Bool("local", false, "only goals not yet synced")

	goalRmCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	goalCmd.AddCommand(goalAddCmd, goalListCmd, goalProgressCmd, goalLinkCmd, goalRmCmd)
	rootCmd.AddCommand(goalCmd)
}
