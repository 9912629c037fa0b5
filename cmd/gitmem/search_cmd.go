package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/gitmemory/internal/cli"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/recall"
)

func searchCmd() *cobra.Command {
	var (
		topK      int
		namespace string
		domain    string
		textOnly  bool
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by meaning (or by keyword with --text). With no query, lists the most recent memories.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			d := parseSearchDomain(domain)
			if d == memtypes.DomainUser || d == recall.DomainBoth {
				if err := app.OpenUserDomain(ctx); err != nil {
					return err
				}
			}

			opts := recall.SearchOptions{
				K:         topK,
				Namespace: memtypes.Namespace(namespace),
				Domain:    d,
			}

			var results []memtypes.MemoryResult
			if len(args) == 0 {
				results, err = app.Recall.Recent(ctx, d, topK)
			} else if textOnly {
				results, err = app.Recall.SearchText(ctx, args[0], opts)
			} else {
				results, err = app.Recall.Search(ctx, args[0], opts)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%ssemantic search unavailable, falling back to keyword search%s\n", cli.Dim, cli.Reset)
					results, err = app.Recall.SearchText(ctx, args[0], opts)
				}
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if jsonOut {
				data, _ := json.MarshalIndent(results, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			printResults(results)
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 10, "Number of results")
	cmd.Flags().StringVar(&namespace, "namespace", "", "Filter by namespace")
	cmd.Flags().StringVar(&domain, "domain", "project", "project, user, or both")
	cmd.Flags().BoolVar(&textOnly, "text", false, "Use keyword (FTS) search instead of semantic search")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func parseSearchDomain(s string) memtypes.Domain {
	switch strings.ToLower(s) {
	case "user":
		return memtypes.DomainUser
	case "both":
		return recall.DomainBoth
	default:
		return memtypes.DomainProject
	}
}

func printResults(results []memtypes.MemoryResult) {
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{
			r.Memory.ID,
			string(r.Memory.Namespace),
			fmt.Sprintf("%.3f", r.Distance),
			r.Memory.Summary,
		}
	}
	cli.Table([]string{"ID", "NAMESPACE", "DISTANCE", "SUMMARY"}, rows)
}
