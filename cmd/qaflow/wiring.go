package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/qaflow/pkg/artifact"
	"github.com/ormasoftchile/qaflow/pkg/browser"
	"github.com/ormasoftchile/qaflow/pkg/config"
	"github.com/ormasoftchile/qaflow/pkg/engine"
	"github.com/ormasoftchile/qaflow/pkg/logging"
	"github.com/ormasoftchile/qaflow/pkg/metrics"
	"github.com/ormasoftchile/qaflow/pkg/report"
	"github.com/ormasoftchile/qaflow/pkg/runner"
	"github.com/ormasoftchile/qaflow/pkg/testcase"
	"github.com/ormasoftchile/qaflow/pkg/trace"
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error { return &exitError{code: code, err: err} }

// exitCode maps a command error to the process status: 1 for test failures,
// 2 for validation and compilation failures.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// env is everything a command needs, built once from the loaded config.
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	store   testcase.Store
	metrics *metrics.Collector
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, withCode(2, err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, withCode(2, err)
	}
	log, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	store, err := testcase.Open(ctx, testcase.Options{
		Backend:       cfg.Store.Backend,
		Dir:           cfg.Store.Dir,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
		RedisPrefix:   cfg.Store.RedisPrefix,
	})
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("open store: %w", err)
	}
	e := &env{cfg: cfg, log: log, store: store}
	if cfg.Metrics.Enabled {
		e.metrics = metrics.NewCollector()
	}
	return e, nil
}

func (e *env) Close() {
	if err := testcase.Close(e.store); err != nil {
		e.log.Warn("closing store failed", zap.Error(err))
	}
	_ = e.log.Sync()
}

// applyFlags lets persistent flags override file and environment values.
func applyFlags(cfg *config.Config) {
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if flagStore != "" {
		cfg.Store.Backend = flagStore
	}
	if flagStoreDir != "" {
		cfg.Store.Dir = flagStoreDir
	}
	if flagBrowser != "" {
		cfg.Browser.Driver = flagBrowser
	}
	if flagFixture != "" {
		cfg.Browser.Fixture = flagFixture
	}
}

func (e *env) launcher() (browser.Launcher, error) {
	switch e.cfg.Browser.Driver {
	case "memory":
		f, err := browser.LoadFixture(e.cfg.Browser.Fixture)
		if err != nil {
			return nil, err
		}
		return browser.NewMemoryLauncher(f), nil
	default:
		return &browser.ChromeLauncher{
			Headless:     e.cfg.Browser.Headless,
			ExecPath:     e.cfg.Browser.ExecPath,
			WindowWidth:  e.cfg.Browser.Width,
			WindowHeight: e.cfg.Browser.Height,
			Logger:       e.log.Named("chrome"),
		}, nil
	}
}

func (e *env) artifacts(ctx context.Context) (artifact.Store, error) {
	a := e.cfg.Artifacts
	switch a.Backend {
	case "none":
		return nil, nil
	case "s3":
		return artifact.NewS3Store(ctx, artifact.S3Config{
			Bucket:    a.S3Bucket,
			Prefix:    a.S3Prefix,
			Region:    a.S3Region,
			Endpoint:  a.S3Endpoint,
			AccessKey: a.S3AccessKey,
			SecretKey: a.S3SecretKey,
			PathStyle: a.S3PathStyle,
		})
	default:
		return artifact.NewFileStore(a.Dir), nil
	}
}

// runSettings are the per-invocation overrides of the run section.
type runSettings struct {
	target      string
	parallelism int
	retries     int
	onResult    func(*engine.ExecutionResult)
}

// newRunner wires a runner for one run. The returned cleanup closes the
// trace file and any NATS connection.
func (e *env) newRunner(ctx context.Context, rs runSettings) (*runner.Runner, func(), error) {
	launcher, err := e.launcher()
	if err != nil {
		return nil, nil, err
	}
	store, err := e.artifacts(ctx)
	if err != nil {
		return nil, nil, err
	}
	runID := runner.GenerateRunID()
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var tw *trace.Writer
	if e.cfg.Trace.Enabled {
		dir := filepath.Join(e.cfg.Run.ResultsDir, runID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create results dir: %w", err)
		}
		tw, err = trace.NewFileWriter(filepath.Join(dir, "trace.jsonl"), runID)
		if err != nil {
			return nil, nil, err
		}
		rules, err := trace.CompileRedactionRules(e.cfg.Trace.Redactions)
		if err != nil {
			tw.Close()
			return nil, nil, err
		}
		tw.SetRedactions(rules)
		closers = append(closers, func() { _ = tw.Close() })
	}

	var sinks []report.Sink
	if e.cfg.NATS.URL != "" {
		ns, err := report.DialNATS(e.cfg.NATS.URL, e.cfg.NATS.Subject)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		sinks = append(sinks, ns)
		closers = append(closers, func() { _ = ns.Close() })
	}

	target := e.cfg.Run.Target
	if rs.target != "" {
		target = rs.target
	}
	parallelism := e.cfg.Run.Parallelism
	if rs.parallelism > 0 {
		parallelism = rs.parallelism
	}
	retries := e.cfg.Run.Retries
	if rs.retries >= 0 {
		retries = rs.retries
	}
	opts := runner.Options{
		Store:       e.store,
		Launcher:    launcher,
		Artifacts:   store,
		Timeouts:    e.cfg.Timeouts,
		Target:      target,
		Parallelism: parallelism,
		TestTimeout: e.cfg.Run.TestTimeout,
		Retries:     retries,
		ResultsDir:  e.cfg.Run.ResultsDir,
		RunID:       runID,
		Trace:       tw,
		Metrics:     e.metrics,
		Sinks:       sinks,
		Logger:      e.log,
		OnResult:    rs.onResult,
	}
	r, err := runner.New(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return r, cleanup, nil
}

// serveMetrics exposes the collector on the configured address until ctx is
// done. It is a no-op without a listen address.
func (e *env) serveMetrics(ctx context.Context) {
	if e.metrics == nil || e.cfg.Metrics.Listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())
	srv := &http.Server{Addr: e.cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		e.log.Info("serving metrics", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
