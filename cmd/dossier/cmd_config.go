package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dossier/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the dossier config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config to --config",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		// API keys stay in the environment, never on disk.
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s provider=%s model=%s embeddings=%s index=%s\n",
			okStyle.Render("ok"), cfg.LLM.Provider, cfg.LLM.Model, cfg.Embedding.Provider, cfg.Retrieval.DatabasePath)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
}
