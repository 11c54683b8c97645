// Command ql is a local-first task, goal and focus-timer tracker that syncs
// with the questlog backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/ui"
)

// Version is set at build time.
var Version = "dev"

var (
	configFile string
	jsonOutput bool
	verbose    bool
	colorMode  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ql",
	Short: "Local-first tasks, goals and focus timer",
	Long: `ql tracks tasks, goals and focus-timer sessions in a local SQLite store.

Everything works offline. When you are logged in, records are pushed to the
questlog backend: local-only records get their backend id on the first
successful sync, and 'ql merged' shows backend and local records side by side.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(config.Options{ConfigFile: configFile})
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("color") {
			loaded.UI.Color = colorMode
		}
		cfg = loaded
		ui.Setup(cfg.UI.Color, os.Stdout)
		return nil
	},
}

// exitError ends the process with code after output was already printed.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "records", Title: "Records:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log sync and request details to stderr")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "color output: auto, always or never")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
