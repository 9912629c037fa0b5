package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/gitmemory/internal/capture"
	"github.com/sgx-labs/gitmemory/internal/cli"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

func captureCmd() *cobra.Command {
	var (
		namespace string
		summary   string
		domain    string
		tags      string
	)
	cmd := &cobra.Command{
		Use:   "capture [content]",
		Short: "Append a memory to the object store",
		Long: `Durably appends a memory under a namespace (decisions, blockers, progress,
learnings, ...). Content is read from the argument, or from stdin if no
argument is given.

  gitmem capture --namespace decisions --summary "Use JWT for auth" "We chose JWT over sessions because..."
  echo "blocked on API keys" | gitmem capture --namespace blockers --summary "Waiting on API keys"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := resolveContent(args)
			if err != nil {
				return err
			}
			if namespace == "" {
				return fmt.Errorf("--namespace is required")
			}
			if summary == "" {
				return fmt.Errorf("--summary is required")
			}

			ctx := context.Background()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			d := memtypes.DomainProject
			if strings.EqualFold(domain, "user") {
				d = memtypes.DomainUser
			}
			svc, err := app.CaptureServiceFor(ctx, d)
			if err != nil {
				return err
			}

			result, err := svc.Capture(ctx, capture.Request{
				Namespace: memtypes.Namespace(namespace),
				Domain:    d,
				Summary:   summary,
				Content:   content,
				Tags:      splitTags(tags),
			})
			if err != nil {
				return fmt.Errorf("capture failed: %w", err)
			}
			if !result.Success {
				return fmt.Errorf("capture rejected: %s", result.Warning)
			}

			fmt.Printf("%s✓%s Captured %s\n", cli.Green, cli.Reset, result.Memory.ID)
			if result.Warning != "" {
				fmt.Printf("  %s%s%s\n", cli.Dim, result.Warning, cli.Reset)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "", "Memory namespace (decisions, blockers, progress, learnings, ...)")
	cmd.Flags().StringVar(&summary, "summary", "", "One-line summary, <=100 characters")
	cmd.Flags().StringVar(&domain, "domain", "project", "project or user")
	cmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tags")
	return cmd
}

func resolveContent(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", fmt.Errorf("no content given (pass an argument or pipe content via stdin)")
	}
	return content, nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
