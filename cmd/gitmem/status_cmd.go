package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/gitmemory/internal/cli"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

func statusCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what gitmem is tracking in this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show per-namespace counts")
	return cmd
}

func runStatus(verbose bool) error {
	ctx := context.Background()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	cli.Header("gitmem status")

	stats, err := app.ProjectIndex.Stats(memtypes.DomainProject)
	if err != nil {
		return fmt.Errorf("read index stats: %w", err)
	}

	cli.Section("Project")
	cli.KV("data dir", 16, cli.ShortenHome(app.Config.DataDir))
	cli.KV("memories", 16, cli.FormatNumber(stats.TotalMemories))
	cli.KV("schema", 16, fmt.Sprintf("v%d", stats.SchemaVersion))
	cli.KV("fts5", 16, fmt.Sprintf("%v", stats.FTSAvailable))
	if stats.LastReindex != "" {
		cli.KV("last reindex", 16, stats.LastReindex)
	}

	cli.Section("Embedding")
	if app.Embedder == nil {
		fmt.Printf("  %s%s%s keyword-only mode (no embedding provider)\n", cli.Yellow, cli.StatusIcon(false), cli.Reset)
	} else {
		cli.KV("provider", 16, app.Config.Embedding.Provider)
		cli.KV("model", 16, app.Config.Embedding.Model)
		cli.KV("dimensions", 16, fmt.Sprintf("%d", app.Config.EmbeddingDim()))
	}

	if verbose {
		cli.Section("Index integrity")
		if err := app.ProjectIndex.IntegrityCheck(); err != nil {
			fmt.Printf("  %s%s%s %v\n", cli.Red, cli.StatusIcon(false), cli.Reset, err)
		} else {
			fmt.Printf("  %s%s%s ok\n", cli.Green, cli.StatusIcon(true), cli.Reset)
		}
		if app.Embedder != nil {
			var withEmbedding int
			if err := app.ProjectIndex.Conn().QueryRow(
				`SELECT COUNT(*) FROM memories m JOIN vec_memories v ON v.memory_row_id = m.id`,
			).Scan(&withEmbedding); err == nil && withEmbedding < stats.TotalMemories {
				fmt.Printf("  %s%s%s %d of %d memories have no embedding — run `gitmem sync full` to backfill\n",
					cli.Yellow, cli.StatusIcon(false), cli.Reset, stats.TotalMemories-withEmbedding, stats.TotalMemories)
			}
		}

		cli.Section("Namespaces")
		names := app.Config.NamespaceList()
		if len(names) == 0 {
			for ns := range stats.ByNamespace {
				names = append(names, ns)
			}
		}
		sort.Strings(names)
		rows := make([][]string, len(names))
		for i, ns := range names {
			rows[i] = []string{ns, cli.FormatNumber(stats.ByNamespace[ns])}
		}
		cli.Table([]string{"NAMESPACE", "COUNT"}, rows)

		cli.Section("Recent hook activity")
		activity, err := app.ProjectIndex.GetRecentHookActivity(10)
		if err != nil {
			return fmt.Errorf("read hook activity: %w", err)
		}
		if len(activity) == 0 {
			fmt.Println("  (none recorded yet)")
		} else {
			hookRows := make([][]string, len(activity))
			for i, rec := range activity {
				hookRows[i] = []string{
					rec.HookName,
					rec.Status,
					cli.FormatNumber(rec.SurfacedMemories),
					cli.FormatNumber(rec.EstimatedTokens),
				}
			}
			cli.Table([]string{"HOOK", "STATUS", "SURFACED", "TOKENS"}, hookRows)
		}
	}

	cli.Footer()
	return nil
}
