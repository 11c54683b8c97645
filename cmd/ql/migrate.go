package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/questlog/questlog/internal/migrate"
	"github.com/questlog/questlog/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "advanced",
	Short:   "Write every local record to a snapshot",
	Long: `Write tasks, goals and sessions to a YAML or JSONL snapshot.

Without a file the snapshot goes to stdout. The format follows --format, or
the file extension (.yaml, .yml, .jsonl).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := formatFlag(cmd, args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		rt, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		var w io.Writer = os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			defer f.Close()
			w = f
		}
		if err := migrate.Export(ctx, rt.store, w, format); err != nil {
			return err
		}
		if len(args) == 1 {
			fmt.Fprintf(os.Stderr, "%s Exported to %s\n", ui.RenderPass("✓"), args[0])
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import [file]",
	GroupID: "advanced",
	Short:   "Load records from a snapshot",
	Long: `Load a YAML or JSONL snapshot into the local store.

Imported records are local only; run 'ql sync' to push them. Records whose
title and creation time match one already in the store are skipped, so the
same snapshot can be imported twice safely.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := formatFlag(cmd, args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		rt, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		var r io.Reader = os.Stdin
		if len(args) == 1 {
			// #nosec G304 - path from the command line
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()
			r = f
		}
		result, err := migrate.Import(ctx, rt.store, r, format)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}
		fmt.Printf("%s Imported %d tasks, %d goals, %d sessions (%d skipped)\n",
			ui.RenderPass("✓"), result.Tasks, result.Goals, result.Sessions, result.Skipped)
		for _, msg := range result.Errors {
			fmt.Printf("   %s %s\n", ui.RenderFail("✗"), msg)
		}
		if len(result.Errors) > 0 {
			return &exitError{code: 2}
		}
		return nil
	},
}

func formatFlag(cmd *cobra.Command, args []string) (migrate.Format, error) {
	if cmd.Flags().Changed("format") {
		s, _ := cmd.Flags().GetString("format")
		return migrate.ParseFormat(s)
	}
	if len(args) == 1 {
		return migrate.FormatFromPath(args[0], migrate.FormatYAML), nil
	}
	return migrate.FormatYAML, nil
}

func init() {
	exportCmd.Flags().StringP("format", "f", "yaml", "snapshot format: yaml or jsonl")
	importCmd.Flags().StringP("format", "f", "yaml", "snapshot format: yaml or jsonl")
	rootCmd.AddCommand(exportCmd, importCmd)
}
