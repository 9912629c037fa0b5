package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/gitmemory/internal/hooktransport"
)

// hookEvents is the fixed set of session lifecycle events hook_cmd.go
// dispatches.
var hookEvents = []string{
	"session-start", "user-prompt-submit", "stop",
	"pre-tool-use", "post-tool-use", "pre-compact",
}

var hookEventNames = map[string]string{
	"session-start":      "SessionStart",
	"user-prompt-submit": "UserPromptSubmit",
	"stop":               "Stop",
	"pre-tool-use":       "PreToolUse",
	"post-tool-use":      "PostToolUse",
	"pre-compact":        "PreCompact",
}

func hookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Run a lifecycle hook handler (JSON in on stdin, JSON out on stdout)",
	}
	for _, name := range hookEvents {
		cmd.AddCommand(hookSubCmd(name))
	}
	return cmd
}

func hookSubCmd(name string) *cobra.Command {
	eventName := hookEventNames[name]
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("%s hook handler", eventName),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, err := openApp(ctx)
			if err != nil {
				// A hook must never fail the host's turn over a bad
				// environment.
				fmt.Println("{}")
				return nil
			}
			defer app.Close()
			hooktransport.Run(app, eventName)
			return nil
		},
	}
}
