package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/gitmemory/internal/cli"
	"github.com/sgx-labs/gitmemory/internal/setup"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Install gitmem hooks into this project (start here)",
		Long: `Wires gitmem's five lifecycle hooks into .claude/settings.json so
captures and context injection happen automatically during a session.

Run this once from inside your project's repository root.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve working directory: %w", err)
			}
			if err := setup.InstallHooks(repoRoot); err != nil {
				return fmt.Errorf("install hooks: %w", err)
			}
			fmt.Printf("%s✓%s Installed gitmem hooks into %s\n", cli.Green, cli.Reset,
				cli.ShortenHome(repoRoot+"/.claude/settings.json"))
			return nil
		},
	}
}
