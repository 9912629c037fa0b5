package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/gitmemory/internal/mcpserver"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the AI tool integration server (MCP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			mcpserver.Version = Version
			return mcpserver.New(app).Serve(ctx)
		},
	}
}
