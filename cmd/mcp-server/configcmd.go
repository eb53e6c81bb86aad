package main

import (
	"fmt"
	"os"

	"repo-mcp/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration with the token redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, notices, err := config.Resolve(flags.options())
			if err != nil {
				return err
			}
			for _, notice := range notices {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", notice)
			}
			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write the resolved configuration to a .yaml or .json file",
		Long: `Write the resolved configuration to a file. The GitHub token is not
written; keep it in GITHUB_TOKEN or seal it with encrypt-config.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !force && fileExists(path) {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			cfg, _, err := config.Resolve(flags.options())
			if err != nil {
				return err
			}
			cfg.GitHub.Token = ""
			if err := config.SaveConfig(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	cmd.AddCommand(show, initCmd)
	return cmd
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
