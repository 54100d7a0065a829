package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-authgate/internal/repl"
)

func newREPLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session as the configured caller",
		Long: `Start an interactive REPL authenticated with MCP_AUTHGATE_TOKEN or
MCP_AUTHGATE_API_KEY (see 'mcp-authgate token' to obtain one).

In REPL mode, you can:
- Show who you are and which services you can reach
- List and describe the tools of a downstream service
- Execute tools interactively with JSON arguments
- Run the multi-service flow for a free-form request`,
		RunE: runREPL,
	}
}

func runREPL(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	setupSignalHandler(cancel, false)

	logger := newLogger()
	rt, err := buildRuntime(ctx, logger)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	r := repl.New(repl.Config{
		Auth:    rt.auth,
		Factory: rt.factory,
		Logger:  logger,
		Headers: credentialHeaders(),
	})
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("REPL error: %w", err)
	}
	return nil
}
