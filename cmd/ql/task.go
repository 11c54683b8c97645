package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/questlog/questlog/internal/app"
	"github.com/questlog/questlog/internal/dates"
	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
	"github.com/questlog/questlog/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "records",
	Short:   "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Long: `Add a task to the local store.

The task gets a local id (shown with a trailing *) until the next sync
gives it a backend id.

Examples:
  ql task add "Write quarterly report" --priority high --due "next friday"
  ql task add "Book flights" --goal 3 --estimate 30`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := &schema.Task{Title: strings.Join(args, " ")}
		if err := applyTaskFlags(cmd, task); err != nil {
			return err
		}
		goalArgs, _ := cmd.Flags().GetStringSlice("goal")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			created, err := a.CreateTask(ctx, task)
			if err != nil {
				return err
			}
			for _, g := range goalArgs {
				goalID, err := parseIDArg(g)
				if err != nil {
					return err
				}
				if _, err := a.LinkTask(ctx, goalID, created.ID); err != nil {
					return fmt.Errorf("task created but failed to link goal %s: %w", goalID, err)
				}
			}
			if jsonOutput {
				latest, err := a.Task(ctx, created.ID)
				if err != nil {
					return err
				}
				return printJSON(latest)
			}
			fmt.Printf("%s Added task %s: %s\n", ui.RenderPass("✓"), ui.IDLabel(created.ID), created.Title)
			return nil
		})
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List local tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter db.TaskFilter
		if done, _ := cmd.Flags().GetBool("done"); done {
			completed := true
			filter.Completed = &completed
		}
		if all, _ := cmd.Flags().GetBool("all"); !all && filter.Completed == nil {
			pending := false
			filter.Completed = &pending
		}
		filter.Category, _ = cmd.Flags().GetString("category")
		filter.LocalOnly, _ = cmd.Flags().GetBool("local")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			tasks, err := a.Tasks(ctx, filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(tasks)
			}
			printTasks(tasks)
			return nil
		})
	},
}

var taskDoneCmd = &cobra.Command{
	Use:     "done <id>",
	Aliases: []string{"toggle"},
	Short:   "Toggle a task's completion",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			task, err := a.ToggleTask(ctx, id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(task)
			}
			state := "reopened"
			if task.Completed {
				state = "completed"
			}
			fmt.Printf("%s Task %s %s: %s\n", ui.RenderPass("✓"), ui.IDLabel(task.ID), state, task.Title)
			return nil
		})
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change task fields",
	Long: `Change the fields given as flags; everything else is kept.

Example:
  ql task edit 4 --title "Write annual report" --due 2026-12-01`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			task, err := a.UpdateTask(ctx, id, func(t *schema.Task) error {
				if cmd.Flags().Changed("title") {
					t.Title, _ = cmd.Flags().GetString("title")
				}
				if err := applyTaskFlags(cmd, t); err != nil {
					return err
				}
				return t.Validate()
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(task)
			}
			fmt.Printf("%s Updated task %s: %s\n", ui.RenderPass("✓"), ui.IDLabel(task.ID), task.Title)
			return nil
		})
	},
}

var taskRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			task, err := a.Task(ctx, id)
			if err != nil {
				return err
			}
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				ok, err := confirm(fmt.Sprintf("Delete task %q?", task.Title))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Cancelled")
					return nil
				}
			}
			if err := a.DeleteTask(ctx, id); err != nil {
				return err
			}
			fmt.Printf("%s Deleted task %s: %s\n", ui.RenderPass("✓"), ui.IDLabel(id), task.Title)
			return nil
		})
	},
}

// applyTaskFlags copies the optional task flags that were set onto task.
func applyTaskFlags(cmd *cobra.Command, task *schema.Task) error {
	flags := cmd.Flags()
	if flags.Changed("desc") {
		task.Description, _ = flags.GetString("desc")
	}
	if flags.Changed("priority") {
		s, _ := flags.GetString("priority")
		p, err := schema.ParsePriority(s)
		if err != nil {
			return err
		}
		task.Priority = p
	}
	if flags.Changed("category") {
		task.Category, _ = flags.GetString("category")
	}
	if flags.Changed("due") {
		s, _ := flags.GetString("due")
		if s == "" || s == "none" {
			task.DueDate = nil
		} else {
			due, err := dates.ParseDay(s, time.Now())
			if err != nil {
				return err
			}
			due = dates.UTCDay(due)
			task.DueDate = &due
		}
	}
	if flags.Changed("estimate") {
		n, _ := flags.GetInt("estimate")
		if n <= 0 {
			task.EstimatedMinutes = nil
		} else {
			task.EstimatedMinutes = &n
		}
	}
	return nil
}

func printTasks(tasks []*schema.Task) {
	if len(tasks) == 0 {
		fmt.Println(ui.RenderMuted("No tasks"))
		return
	}
	for _, t := range tasks {
		line := fmt.Sprintf("%s %-8s %-6s %s", ui.Checkbox(t.Completed), ui.IDLabel(t.ID), ui.RenderPriority(t.Priority), t.Title)
		var extra []string
		if t.Category != "" {
			extra = append(extra, "#"+t.Category)
		}
		if t.DueDate != nil {
			due := "due " + t.DueDate.Format("2006-01-02")
			if !t.Completed && t.DueDate.Before(time.Now()) {
				due = ui.RenderFail(due)
			}
			extra = append(extra, due)
		}
		if t.ActualMinutes != nil || t.EstimatedMinutes != nil {
			extra = append(extra, minutesLabel(t.ActualMinutes, t.EstimatedMinutes))
		}
		if len(extra) > 0 {
			line += "  " + ui.RenderMuted(strings.Join(extra, "  "))
		}
		fmt.Println(line)
	}
}

func minutesLabel(actual, estimated *int) string {
	a, e := 0, 0
	if actual != nil {
		a = *actual
	}
	if estimated != nil {
		e = *estimated
		return fmt.Sprintf("%d/%dm", a, e)
	}
	return fmt.Sprintf("%dm", a)
}

func init() {
	for _, c := range []*cobra.Command{taskAddCmd, taskEditCmd} {
		c.Flags().StringP("desc", "d", "", "description")
		c.Flags().StringP("priority", "p", "medium", "priority: low, medium or high")
		c.Flags().StringP("category", "c", "", "category")
		c.Flags().String("due", "", `due date, e.g. 2026-05-01, "tomorrow", "next friday" ("none" clears)`)
		c.Flags().Int("estimate", 0, "estimated minutes")
	}
	taskAddCmd.Flags().StringSlice("goal", nil, "link the task to a goal id (repeatable)")
	taskEditCmd.Flags().String("title", "", "new title")

	taskListCmd.Flags().BoolP("all", "a", false, "include completed tasks")
	taskListCmd.Flags().Bool("done", false, "only completed tasks")
	taskListCmd.Flags().StringP("category", "c", "", "only this category")
	taskListCmd.Flags().Bool("local", false, "only tasks not yet synced")
	taskListCmd.Flags().IntP("limit", "n", 0, "maximum number of tasks")

	taskRmCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskEditCmd, taskRmCmd)
	rootCmd.AddCommand(taskCmd)
}
