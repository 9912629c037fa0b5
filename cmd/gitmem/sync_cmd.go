package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/gitmemory/internal/appctx"
	"github.com/sgx-labs/gitmemory/internal/cli"
)

func syncCmd() *cobra.Command {
	var remote, watch, force bool
	cmd := &cobra.Command{
		Use:   "sync [full|verify|repair]",
		Short: "Reindex, verify, or repair the derived index, or sync with a remote",
		Long: `With no subcommand, rebuilds the derived index from the object store
(equivalent to "sync full"). --remote instead fetches and merges every
configured namespace from the repository's git remote. --watch keeps
running afterward, triggering an incremental reindex on every object-store
change instead of exiting. --force clears the index first, including its
recorded embedding metadata, for use after switching embedding provider
or model.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if remote {
				return runSyncRemote(ctx, app)
			}
			sub := "full"
			if len(args) == 1 {
				sub = args[0]
			}
			switch sub {
			case "full":
				if err := runReindex(ctx, app, force); err != nil {
					return err
				}
				if watch || app.Config.Reindex.Watch {
					return app.Sync.Watch(ctx)
				}
				return nil
			case "verify":
				return runVerify(ctx, app)
			case "repair":
				return runRepair(ctx, app)
			default:
				return fmt.Errorf("unknown sync target %q (want full, verify, or repair)", sub)
			}
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Fetch and merge from the configured git remote instead")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running, reindexing incrementally as the object store changes")
	cmd.Flags().BoolVar(&force, "force", false, "Clear the index and its embedding metadata before rebuilding")
	return cmd
}

func runReindex(ctx context.Context, app *appctx.Context, force bool) error {
	reindex := app.Sync.Reindex
	if force {
		reindex = app.Sync.ForceReindex
	}
	stats, err := reindex(ctx, nil)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	data, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(data))
	return nil
}

func runVerify(ctx context.Context, app *appctx.Context) error {
	report, err := app.Sync.VerifyConsistency(ctx)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	data, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(data))
	if !report.IsConsistent() {
		fmt.Printf("\n%sindex is out of sync — run `gitmem sync repair`%s\n", cli.Yellow, cli.Reset)
	}
	return nil
}

func runRepair(ctx context.Context, app *appctx.Context) error {
	report, err := app.Sync.VerifyConsistency(ctx)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	stats, err := app.Sync.Repair(ctx, report)
	if err != nil {
		return fmt.Errorf("repair failed: %w", err)
	}
	fmt.Printf("%s✓%s Repaired: %d missing reindexed, %d orphans removed.\n",
		cli.Green, cli.Reset, stats.NewlyIndexed, len(report.OrphanedInIndex))
	return nil
}

func runSyncRemote(ctx context.Context, app *appctx.Context) error {
	push := app.Config.Remote.Sync
	result, err := app.Sync.SyncWithRemote(ctx, push)
	if err != nil {
		return fmt.Errorf("remote sync failed: %w", err)
	}
	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
	return nil
}
