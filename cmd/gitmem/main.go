// Package main is the entrypoint for the gitmem CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/gitmemory/internal/appctx"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "gitmem",
		Short: "A git-native memory store for long-running AI coding sessions",
		Long: `gitmem gives an AI coding assistant durable, searchable memory of a
project: decisions, blockers, progress, and learnings captured as it
works, stored as git objects, and recalled by meaning across sessions.

Quick start:
  gitmem init     Install hooks into .claude/settings.json
  gitmem status   See what's captured and indexed
  gitmem search   Find a prior memory by meaning`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.AddCommand(versionCmd())
	root.AddCommand(initCmd())
	root.AddCommand(captureCmd())
	root.AddCommand(recallCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(syncCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(hookCmd())
	root.AddCommand(mcpCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gitmem: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gitmem version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("gitmem %s\n", Version)
			return nil
		},
	}
}

// openApp constructs the application context rooted at the current working
// directory.
func openApp(ctx context.Context) (*appctx.Context, error) {
	repoRoot, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	return appctx.Open(ctx, repoRoot)
}
