// Package main provides the qaflow-mcp binary, an MCP server for AI agents.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/qaflow/pkg/artifact"
	"github.com/ormasoftchile/qaflow/pkg/browser"
	"github.com/ormasoftchile/qaflow/pkg/compiler"
	"github.com/ormasoftchile/qaflow/pkg/config"
	"github.com/ormasoftchile/qaflow/pkg/logging"
	qmcp "github.com/ormasoftchile/qaflow/pkg/mcp"
	"github.com/ormasoftchile/qaflow/pkg/runner"
	"github.com/ormasoftchile/qaflow/pkg/testcase"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	if err := serve(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("QAFLOW_CONFIG"))
	if err != nil {
		return err
	}
	log, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := testcase.Open(ctx, testcase.Options{
		Backend:       cfg.Store.Backend,
		Dir:           cfg.Store.Dir,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
		RedisPrefix:   cfg.Store.RedisPrefix,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer testcase.Close(store)

	mode, err := compiler.ParseMode(cfg.Compile.Mode)
	if err != nil {
		return err
	}
	h := &qmcp.Handlers{
		Store:  store,
		Mode:   mode,
		Logger: log,
		NewRunner: func(target string) (*runner.Runner, error) {
			var launcher browser.Launcher
			if cfg.Browser.Driver == "memory" {
				f, err := browser.LoadFixture(cfg.Browser.Fixture)
				if err != nil {
					return nil, err
				}
				launcher = browser.NewMemoryLauncher(f)
			} else {
				launcher = &browser.ChromeLauncher{
					Headless:     cfg.Browser.Headless,
					ExecPath:     cfg.Browser.ExecPath,
					WindowWidth:  cfg.Browser.Width,
					WindowHeight: cfg.Browser.Height,
					Logger:       log.Named("chrome"),
				}
			}
			var artifacts artifact.Store
			if cfg.Artifacts.Backend == "file" {
				artifacts = artifact.NewFileStore(cfg.Artifacts.Dir)
			}
			if target == "" {
				target = cfg.Run.Target
			}
			return runner.New(runner.Options{
				Store:       store,
				Launcher:    launcher,
				Artifacts:   artifacts,
				Timeouts:    cfg.Timeouts,
				Target:      target,
				Parallelism: cfg.Run.Parallelism,
				TestTimeout: cfg.Run.TestTimeout,
				Retries:     cfg.Run.Retries,
				ResultsDir:  cfg.Run.ResultsDir,
				Logger:      log,
			})
		},
	}
	return server.ServeStdio(qmcp.NewServer(version, h))
}
