// Package runner executes batches of stored test cases and aggregates their
// results into a report.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ormasoftchile/qaflow/pkg/artifact"
	"github.com/ormasoftchile/qaflow/pkg/browser"
	"github.com/ormasoftchile/qaflow/pkg/engine"
	"github.com/ormasoftchile/qaflow/pkg/metrics"
	"github.com/ormasoftchile/qaflow/pkg/report"
	"github.com/ormasoftchile/qaflow/pkg/testcase"
	"github.com/ormasoftchile/qaflow/pkg/trace"
)

// DefaultTimeout bounds one test case execution when Options leaves it
// unset.
const DefaultTimeout = 5 * time.Minute

// GenerateRunID returns a sortable, unique run identifier.
func GenerateRunID() string {
	return time.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
}

// Options configures a Runner.
type Options struct {
	Store     testcase.Store
	Launcher  browser.Launcher
	Artifacts artifact.Store
	Timeouts  engine.Timeouts
	// Target overrides each test case's own target URL.
	Target string
	// Parallelism bounds concurrently executing test cases.
	Parallelism int
	TestTimeout time.Duration
	// Retries re-executes a failed test case up to this many times. Every
	// attempt is persisted; only the last one is reported.
	Retries int
	// ResultsDir receives <runID>/<name>.json per attempt and report.json.
	ResultsDir string
	RunID      string
	Trace      *trace.Writer
	Metrics    *metrics.Collector
	Sinks      []report.Sink
	Logger     *zap.Logger
	Now        func() time.Time
	// OnResult is called after each attempt, from the executing goroutine.
	OnResult func(*engine.ExecutionResult)
}

// Runner executes test cases from a store.
type Runner struct {
	opts Options
	eng  *engine.Engine
}

// New validates opts and builds a runner.
func New(opts Options) (*Runner, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("runner: store is required")
	}
	if opts.Launcher == nil {
		return nil, fmt.Errorf("runner: launcher is required")
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.TestTimeout <= 0 {
		opts.TestTimeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RunID == "" {
		opts.RunID = GenerateRunID()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	eng := engine.New(engine.Config{
		Launcher:  opts.Launcher,
		Artifacts: opts.Artifacts,
		Timeouts:  opts.Timeouts,
		RunID:     opts.RunID,
		Trace:     opts.Trace,
		Logger:    opts.Logger,
	})
	return &Runner{opts: opts, eng: eng}, nil
}

// RunID returns the identifier results are filed under.
func (r *Runner) RunID() string { return r.opts.RunID }

// Run executes the named test cases, or every stored one when names is
// empty. The report covers every test case that could be loaded. The error
// joins load failures, session errors, sink failures and interruption of
// ctx; test failures, including per-test timeouts, are reported, not
// returned.
func (r *Runner) Run(ctx context.Context, names []string) (*report.Report, error) {
	log := r.opts.Logger.With(zap.String("run_id", r.opts.RunID))
	var errs []error
	var errMu sync.Mutex
	addErr := func(err error) {
		errMu.Lock()
		errs = append(errs, err)
		errMu.Unlock()
	}

	if len(names) == 0 {
		all, err := r.opts.Store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list test cases: %w", err)
		}
		names = all
	}
	runDir := ""
	if r.opts.ResultsDir != "" {
		runDir = filepath.Join(r.opts.ResultsDir, r.opts.RunID)
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return nil, fmt.Errorf("create results dir: %w", err)
		}
	}

	r.opts.Trace.Emit(trace.EventRunStart, "", map[string]any{"test_cases": len(names)})
	log.Info("run started", zap.Int("test_cases", len(names)), zap.Int("parallel", r.opts.Parallelism))

	agg := report.NewAggregator()
	sem := make(chan struct{}, r.opts.Parallelism)
	var wg sync.WaitGroup
	for _, name := range names {
		tc, err := r.opts.Store.Get(ctx, name)
		if err != nil {
			log.Error("test case could not be loaded", zap.String("test_case", name), zap.Error(err))
			addErr(fmt.Errorf("load %s: %w", name, err))
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := r.runOne(ctx, tc, runDir, log)
			if err != nil {
				addErr(fmt.Errorf("%s: %w", tc.Name, err))
			}
			if res != nil {
				agg.Add(res)
			}
		}()
	}
	wg.Wait()
	if cerr := ctx.Err(); cerr != nil {
		errs = append(errs, fmt.Errorf("run interrupted: %w", cerr))
	}

	rep := agg.Close(r.opts.RunID, r.opts.Now())
	r.opts.Trace.Emit(trace.EventRunComplete, "", map[string]any{
		"total":  rep.Summary.Total,
		"passed": rep.Summary.Passed,
		"failed": rep.Summary.Failed,
	})
	log.Info("run finished",
		zap.Int("total", rep.Summary.Total),
		zap.Int("passed", rep.Summary.Passed),
		zap.Int("failed", rep.Summary.Failed))

	if runDir != "" {
		sink := report.FileSink{Path: filepath.Join(runDir, "report.json")}
		if err := sink.Publish(ctx, rep); err != nil {
			errs = append(errs, fmt.Errorf("write report: %w", err))
		}
		if r.opts.Metrics != nil {
			if err := r.opts.Metrics.Write(filepath.Join(runDir, "metrics.prom")); err != nil {
				errs = append(errs, fmt.Errorf("write metrics: %w", err))
			}
		}
	}
	for _, s := range r.opts.Sinks {
		if err := s.Publish(ctx, rep); err != nil {
			log.Warn("report sink failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("publish report: %w", err))
		}
	}
	return rep, errors.Join(errs...)
}

// runOne executes tc with retries and returns its last attempt.
func (r *Runner) runOne(ctx context.Context, tc *testcase.TestCase, runDir string, log *zap.Logger) (*engine.ExecutionResult, error) {
	target := r.opts.Target
	var last *engine.ExecutionResult
	var lastErr error
	for attempt := 1; attempt <= r.opts.Retries+1; attempt++ {
		if ctx.Err() != nil && last != nil {
			break
		}
		tctx, cancel := context.WithTimeout(ctx, r.opts.TestTimeout)
		res, err := r.eng.Execute(tctx, tc, target)
		cancel()

		res.Attempt = attempt
		last, lastErr = res, err
		if r.opts.Metrics != nil {
			r.opts.Metrics.ObserveResult(res)
			if browser.IsSessionError(err) {
				r.opts.Metrics.ObserveSessionError()
			}
		}
		if runDir != "" {
			if perr := writeResult(runDir, res, r.opts.Retries > 0); perr != nil {
				log.Warn("persisting result failed", zap.String("test_case", tc.Name), zap.Error(perr))
			}
		}
		if r.opts.OnResult != nil {
			r.opts.OnResult(res)
		}
		if res.Passed() {
			break
		}
		if attempt <= r.opts.Retries {
			log.Info("retrying failed test case", zap.String("test_case", tc.Name), zap.Int("attempt", attempt+1))
		}
	}
	return last, lastErr
}

func writeResult(dir string, res *engine.ExecutionResult, numbered bool) error {
	name := res.TestCaseName + ".json"
	if numbered {
		name = fmt.Sprintf("%s.attempt-%d.json", res.TestCaseName, res.Attempt)
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), append(data, '\n'), 0o644)
}
