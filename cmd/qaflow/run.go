package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ormasoftchile/qaflow/pkg/engine"
	"github.com/ormasoftchile/qaflow/pkg/report"
	"github.com/ormasoftchile/qaflow/pkg/watch"
)

// --- run ---

var (
	runTarget   string
	runParallel int
	runRetries  int
	runFailWhen string
	runJSON     bool
	runVerbose  bool
)

var runCmd = &cobra.Command{
	Use:   "run [name...]",
	Short: "Execute stored test cases in isolated browser sessions",
	Long: `Execute the named test cases, or every stored test case when no names
are given. Each test case runs in its own browser session. Results and the
aggregated report are written under <results_dir>/<run-id>/.

The --fail-when expression decides the exit status. It sees total, passed,
failed, steps, stepsPassed, stepsFailed, stepsSkipped, artifacts, passRate,
failedTests and runId. The default is "failed > 0".`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	e.serveMetrics(ctx)

	r, cleanup, err := e.newRunner(ctx, runSettings{
		target:      runTarget,
		parallelism: runParallel,
		retries:     runRetries,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	rep, runErr := r.Run(ctx, args)
	if rep == nil {
		return runErr
	}
	if runJSON {
		if err := report.WriteJSON(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
	} else {
		report.Print(cmd.OutOrStdout(), rep, report.PrintOptions{Verbose: runVerbose})
		fmt.Fprintf(cmd.OutOrStdout(), "\n  report: %s\n", filepath.Join(e.cfg.Run.ResultsDir, rep.RunID, "report.json"))
	}
	if runErr != nil {
		e.log.Warn("run completed with errors", zap.Error(runErr))
		fmt.Fprintf(cmd.ErrOrStderr(), "  ⚠ %v\n", runErr)
	}
	return gate(firstNonEmpty(runFailWhen, e.cfg.Run.FailWhen), rep, runErr)
}

// gate applies the fail-when expression. Errors from the run itself fail
// the gate too.
func gate(expression string, rep *report.Report, runErr error) error {
	failed, err := report.EvaluateGate(expression, rep)
	if err != nil {
		return withCode(2, err)
	}
	if failed {
		return withCode(1, fmt.Errorf("run %s failed: %d of %d test cases failed", rep.RunID, rep.Summary.Failed, rep.Summary.Total))
	}
	if runErr != nil {
		return withCode(1, runErr)
	}
	return nil
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rerun test cases whenever the file store changes",
	Long: `Watch the file store directory and execute each test case that is
written or recompiled. Changes arriving close together are batched into one
run. Stops on Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	if e.cfg.Store.Backend != "file" {
		return withCode(2, fmt.Errorf("watch requires the file store, got %q", e.cfg.Store.Backend))
	}
	e.serveMetrics(ctx)

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	w := &watch.Watcher{
		Dir:    e.cfg.Store.Dir,
		Logger: e.log,
		Handler: func(ctx context.Context, names []string) {
			r, cleanup, err := e.newRunner(ctx, runSettings{
				target:      runTarget,
				parallelism: runParallel,
				retries:     runRetries,
				onResult: func(res *engine.ExecutionResult) {
					mu.Lock()
					defer mu.Unlock()
					printWatchResult(out, res)
				},
			})
			if err != nil {
				e.log.Error("watch run setup failed", zap.Error(err))
				return
			}
			defer cleanup()
			rep, err := r.Run(ctx, names)
			if err != nil {
				e.log.Warn("watch run completed with errors", zap.Error(err))
			}
			if rep != nil {
				fmt.Fprintf(out, "  %d/%d passed  (run %s)\n", rep.Summary.Passed, rep.Summary.Total, rep.RunID)
			}
		},
	}
	fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", e.cfg.Store.Dir)
	return w.Run(ctx)
}

func printWatchResult(w io.Writer, res *engine.ExecutionResult) {
	fmt.Fprintf(w, "  %s %-30s %s\n", statusIcon(res.OverallStatus), res.TestCaseName, res.Duration().Round(time.Millisecond))
	if res.Error != "" {
		fmt.Fprintf(w, "      %s\n", res.Error)
	}
	for i, s := range res.Steps {
		if s.Status == engine.StepFailed {
			fmt.Fprintf(w, "      step %d: %s\n", i+1, s.Reason)
		}
	}
}

func statusIcon(status engine.Status) string {
	switch status {
	case engine.StatusPassed:
		return "✓"
	case engine.StatusFailed:
		return "✗"
	default:
		return "!"
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{runCmd, watchCmd} {
		c.Flags().StringVar(&runTarget, "target", "", "Target application URL (overrides each test case's own)")
		c.Flags().IntVar(&runParallel, "parallel", 0, "Concurrent browser sessions (default from config)")
		c.Flags().IntVar(&runRetries, "retries", -1, "Re-execute failed test cases this many times (default from config)")
	}
	runCmd.Flags().StringVar(&runFailWhen, "fail-when", "", `Gate expression over the report, e.g. "passRate < 0.9"`)
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the report as JSON")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print every step")
}
