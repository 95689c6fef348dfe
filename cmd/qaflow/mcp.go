package main

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/qaflow/pkg/compiler"
	qmcp "github.com/ormasoftchile/qaflow/pkg/mcp"
	"github.com/ormasoftchile/qaflow/pkg/runner"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the qaflow tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		return server.ServeStdio(qmcp.NewServer(version, mcpHandlers(e)))
	},
}

// mcpHandlers builds the tool handlers over e. Runs started from a tool
// call share the env's store and config.
func mcpHandlers(e *env) *qmcp.Handlers {
	mode, err := compiler.ParseMode(e.cfg.Compile.Mode)
	if err != nil {
		mode = compiler.ModeLossy
	}
	return &qmcp.Handlers{
		Store:  e.store,
		Mode:   mode,
		Logger: e.log,
		NewRunner: func(target string) (*runner.Runner, error) {
			// The tool call owns no cleanup hook, so runs started here skip
			// the trace file and NATS sink.
			launcher, err := e.launcher()
			if err != nil {
				return nil, err
			}
			artifacts, err := e.artifacts(context.Background())
			if err != nil {
				return nil, err
			}
			if target == "" {
				target = e.cfg.Run.Target
			}
			return runner.New(runner.Options{
				Store:       e.store,
				Launcher:    launcher,
				Artifacts:   artifacts,
				Timeouts:    e.cfg.Timeouts,
				Target:      target,
				Parallelism: e.cfg.Run.Parallelism,
				TestTimeout: e.cfg.Run.TestTimeout,
				Retries:     e.cfg.Run.Retries,
				ResultsDir:  e.cfg.Run.ResultsDir,
				Metrics:     e.metrics,
				Logger:      e.log,
			})
		},
	}
}
