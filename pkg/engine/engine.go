// Package engine executes compiled test cases against a target application,
// one isolated browser session per execution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/qaflow/pkg/action"
	"github.com/ormasoftchile/qaflow/pkg/artifact"
	"github.com/ormasoftchile/qaflow/pkg/browser"
	"github.com/ormasoftchile/qaflow/pkg/testcase"
	"github.com/ormasoftchile/qaflow/pkg/trace"
)

// Config wires an Engine.
type Config struct {
	Launcher browser.Launcher
	// Artifacts receives failure screenshots. Nil disables capture.
	Artifacts artifact.Store
	Timeouts  Timeouts
	// CaptureTimeout bounds a screenshot; it is not part of step time.
	CaptureTimeout time.Duration
	// RunID prefixes artifact keys.
	RunID  string
	Trace  *trace.Writer
	Logger *zap.Logger
	// OnTransition observes state changes. index is -1 outside Running.
	OnTransition func(testCase string, state State, index int)
}

// Engine runs test cases. It holds no per-execution state and is safe for
// concurrent use; each Execute acquires its own session.
type Engine struct {
	cfg Config
}

// New returns an engine with zero config fields defaulted.
func New(cfg Config) *Engine {
	cfg.Timeouts = cfg.Timeouts.WithDefaults()
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{cfg: cfg}
}

// assertionError is a mismatch between expected and observed page state.
type assertionError struct {
	msg string
}

func (e *assertionError) Error() string { return e.msg }

// Execute runs tc against target (tc.TargetURL when target is empty).
//
// Step failures are recorded in the result and never returned as errors.
// Cancellation or expiry of ctx is a failure too: the remaining steps are
// skipped with reason "canceled" and res.Error names the cause. The returned
// error is non-nil only for a *browser.SessionError or an internal engine
// fault; the result is complete in every case, with one outcome per action.
func (e *Engine) Execute(ctx context.Context, tc *testcase.TestCase, target string) (result *ExecutionResult, err error) {
	if target == "" {
		target = tc.TargetURL
	}
	res := &ExecutionResult{
		TestCaseName:  tc.Name,
		RunID:         e.cfg.RunID,
		TargetURL:     target,
		OverallStatus: StatusFailed,
		Steps:         make([]StepOutcome, len(tc.Actions)),
		StartedAt:     time.Now().UTC(),
	}
	for i, a := range tc.Actions {
		res.Steps[i] = StepOutcome{Kind: a.Kind(), Status: StepSkipped}
	}
	log := e.cfg.Logger.With(zap.String("test_case", tc.Name), zap.String("run_id", e.cfg.RunID))
	e.cfg.Trace.Emit(trace.EventTestStart, tc.Name, map[string]any{"target": target, "actions": len(tc.Actions)})

	e.transition(tc.Name, StateInitializing, -1)
	sess, lerr := e.cfg.Launcher.Launch(ctx)
	if lerr != nil {
		serr := asSessionError("launch", lerr)
		e.abort(res, 0, "session error: "+serr.Error())
		res.Error = serr.Error()
		res.FinishedAt = time.Now().UTC()
		e.finish(tc.Name, res, log)
		log.Error("browser session could not be created", zap.Error(serr))
		return res, serr
	}

	current := 0
	defer func() {
		if r := recover(); r != nil {
			e.abort(res, current, "not executed: engine fault")
			res.OverallStatus = StatusFailed
			err = fmt.Errorf("engine fault at step %d: %v", current+1, r)
			res.Error = err.Error()
		}
		if cerr := sess.Close(); cerr != nil {
			log.Warn("browser session close failed", zap.Error(cerr))
		}
		res.FinishedAt = time.Now().UTC()
		e.finish(tc.Name, res, log)
		result = res
	}()

	for i, a := range tc.Actions {
		current = i
		if cerr := ctx.Err(); cerr != nil {
			e.abort(res, i, "canceled")
			res.Error = "canceled: " + cerr.Error()
			log.Warn("execution canceled", zap.Int("step", i+1), zap.Error(cerr))
			return res, nil
		}
		e.transition(tc.Name, StateRunning, i)
		e.cfg.Trace.EmitStepStart(tc.Name, i, string(a.Kind()), action.Describe(a))

		out, serr := e.step(ctx, sess, target, a)
		res.Steps[i] = out
		e.cfg.Trace.EmitStepComplete(tc.Name, i, string(out.Status), time.Duration(out.ElapsedMs)*time.Millisecond, out.Reason)

		if serr != nil {
			e.abort(res, i, "session error: "+serr.Error())
			res.Error = serr.Error()
			e.cfg.Trace.Emit(trace.EventSessionError, tc.Name, map[string]any{"index": i, "error": serr.Error()})
			log.Error("browser session lost", zap.Int("step", i+1), zap.Error(serr))
			return res, serr
		}
		if out.Status == StepFailed {
			res.Steps[i].ArtifactRef = e.capture(ctx, sess, tc.Name, i, a, log)
			e.abort(res, i+1, fmt.Sprintf("step %d failed", i+1))
			return res, nil
		}
	}

	res.OverallStatus = StatusPassed
	e.transition(tc.Name, StateCompleted, -1)
	return res, nil
}

// step dispatches one action under its timeout. The action's context is
// detached from caller cancellation so an in-flight action always resolves
// on its own terms. A non-nil error is a session error.
func (e *Engine) step(ctx context.Context, sess browser.Session, target string, a action.Action) (StepOutcome, error) {
	timeout := e.cfg.Timeouts.For(a)
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	start := time.Now()
	err := dispatch(actx, sess, target, a)
	elapsed := time.Since(start)

	out := StepOutcome{Kind: a.Kind(), Status: StepPassed, ElapsedMs: elapsed.Milliseconds()}
	if err == nil {
		return out, nil
	}
	var se *browser.SessionError
	if errors.As(err, &se) {
		out.Status = StepSkipped
		out.Reason = "session error: " + se.Error()
		return out, se
	}
	out.Status = StepFailed
	out.Reason = failureReason(err, a, timeout)
	return out, nil
}

func dispatch(ctx context.Context, sess browser.Session, target string, a action.Action) error {
	switch v := a.(type) {
	case action.Navigate:
		u, err := resolveURL(target, v.URL)
		if err != nil {
			return err
		}
		return sess.Navigate(ctx, u)
	case action.Click:
		return sess.Click(ctx, v.Selector)
	case action.Fill:
		return sess.Fill(ctx, v.Selector, v.Text)
	case action.AssertVisible:
		return sess.WaitVisible(ctx, v.Selector)
	case action.AssertText:
		got, err := sess.Text(ctx, v.Selector)
		if err != nil {
			return err
		}
		if !strings.Contains(normalizeSpace(got), normalizeSpace(v.Expected)) {
			return &assertionError{msg: fmt.Sprintf("expected %s to contain %q, got %q", v.Selector, v.Expected, got)}
		}
		return nil
	case action.Wait:
		if v.Selector != "" {
			return sess.WaitVisible(ctx, v.Selector)
		}
		t := time.NewTimer(v.Duration)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("no handler for action kind %q", a.Kind())
}

func failureReason(err error, a action.Action, timeout time.Duration) string {
	var ae *assertionError
	switch {
	case errors.As(err, &ae):
		return "assertion failed: " + ae.msg
	case errors.Is(err, context.DeadlineExceeded):
		if sel := action.SelectorOf(a); sel != "" {
			return fmt.Sprintf("timeout after %s waiting for %s", timeout, sel)
		}
		return fmt.Sprintf("timeout after %s: %s", timeout, action.Describe(a))
	default:
		return err.Error()
	}
}

// capture stores a screenshot of the failed page and returns its reference,
// or "" when capture is disabled or fails.
func (e *Engine) capture(ctx context.Context, sess browser.Session, name string, index int, a action.Action, log *zap.Logger) string {
	if e.cfg.Artifacts == nil {
		return ""
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CaptureTimeout)
	defer cancel()

	png, err := sess.Screenshot(cctx)
	if err != nil {
		log.Warn("screenshot failed", zap.Int("step", index+1), zap.Error(err))
		return ""
	}
	key := artifact.Key(e.cfg.RunID, name, fmt.Sprintf("step-%02d-%s.png", index+1, a.Kind()))
	art, err := e.cfg.Artifacts.Put(cctx, key, png, "image/png")
	if err != nil {
		log.Warn("storing screenshot failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	e.cfg.Trace.Emit(trace.EventArtifactCaptured, name, map[string]any{
		"index": index, "ref": art.Ref, "sha256": art.SHA256, "size": art.Size,
	})
	return art.Ref
}

// abort marks every step from index on as skipped with reason and moves the
// execution to Aborted.
func (e *Engine) abort(res *ExecutionResult, from int, reason string) {
	for j := from; j < len(res.Steps); j++ {
		if res.Steps[j].Status == StepSkipped && res.Steps[j].Reason == "" {
			res.Steps[j].Reason = reason
		}
	}
	res.OverallStatus = StatusFailed
	e.transition(res.TestCaseName, StateAborted, -1)
}

func (e *Engine) transition(name string, s State, index int) {
	e.cfg.Trace.EmitStateChange(name, string(s), index)
	if e.cfg.OnTransition != nil {
		e.cfg.OnTransition(name, s, index)
	}
}

func (e *Engine) finish(name string, res *ExecutionResult, log *zap.Logger) {
	passed, failed, skipped := res.Counts()
	e.cfg.Trace.Emit(trace.EventTestComplete, name, map[string]any{
		"status":   string(res.OverallStatus),
		"duration": res.Duration().String(),
	})
	log.Info("test case finished",
		zap.String("status", string(res.OverallStatus)),
		zap.Int("passed", passed),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
		zap.Duration("duration", res.Duration()))
}

// resolveURL resolves ref against target; absolute refs pass through.
func resolveURL(target, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", ref, err)
	}
	if r.IsAbs() || target == "" {
		return ref, nil
	}
	base, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target %q: %w", target, err)
	}
	return base.ResolveReference(r).String(), nil
}

func asSessionError(op string, err error) *browser.SessionError {
	var se *browser.SessionError
	if errors.As(err, &se) {
		return se
	}
	return &browser.SessionError{Op: op, Err: err}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
