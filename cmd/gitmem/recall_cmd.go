package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/recall"
)

func recallCmd() *cobra.Command {
	var (
		budget int
		domain string
	)
	cmd := &cobra.Command{
		Use:   "recall [terms...]",
		Short: "Compose a token-budgeted context document from working and semantic memory",
		Long: `Builds the same context document the session-start and prompt-submit hooks
inject, for inspecting what gitmem would surface right now.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			d := recall.DomainBoth
			switch strings.ToLower(domain) {
			case "project":
				d = memtypes.DomainProject
			case "user":
				d = memtypes.DomainUser
				if err := app.OpenUserDomain(ctx); err != nil {
					return err
				}
			default:
				if err := app.OpenUserDomain(ctx); err != nil {
					return err
				}
			}

			doc, err := app.Recall.ProactiveRecall(ctx, recall.ProactiveRecallOptions{
				TriggerTerms: args,
				TokenBudget:  budget,
				Domain:       d,
			})
			if err != nil {
				return fmt.Errorf("recall failed: %w", err)
			}

			rendered := recall.RenderContext(doc)
			if strings.TrimSpace(rendered) == "" {
				fmt.Println("(nothing to recall)")
				return nil
			}
			fmt.Print(rendered)
			return nil
		},
	}
	cmd.Flags().IntVar(&budget, "budget", 0, "Token budget (0 = use the configured default)")
	cmd.Flags().StringVar(&domain, "domain", "both", "project, user, or both")
	return cmd
}
