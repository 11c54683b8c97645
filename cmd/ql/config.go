package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Inspect or create the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			path = config.DefaultPath()
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := config.WriteDefault(path, force); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			masked := *cfg
			if masked.Auth.Token != "" {
				masked.Auth.Token = "********"
			}
			return printJSON(masked)
		}
		if cfg.File != "" {
			fmt.Printf("# from %s\n", cfg.File)
		} else {
			fmt.Printf("# no config file; defaults and environment only\n")
		}
		showSecrets, _ := cmd.Flags().GetBool("show-secrets")
		return cfg.Encode(os.Stdout, showSecrets)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configShowCmd.Flags().Bool("show-secrets", false, "print the token unmasked")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
