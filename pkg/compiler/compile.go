// Package compiler turns untrusted candidate action records into stored test
// cases.
package compiler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/qaflow/pkg/action"
	"github.com/ormasoftchile/qaflow/pkg/testcase"
)

// Mode selects how invalid candidates are handled.
type Mode string

const (
	// ModeStrict aborts compilation on the first invalid candidate.
	ModeStrict Mode = "strict"
	// ModeLossy drops invalid candidates and records each drop.
	ModeLossy Mode = "lossy"
)

// ParseMode accepts "strict" or "lossy" (default lossy when empty).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLossy:
		return ModeLossy, nil
	case ModeStrict:
		return ModeStrict, nil
	}
	return "", fmt.Errorf("unknown compile mode %q (want strict or lossy)", s)
}

// Options configures one compilation.
type Options struct {
	Mode      Mode
	Source    string // source artifact reference, e.g. src/Login.tsx
	TargetURL string
	Generator string // model name, recorded for provenance

	// Store receives the compiled test case. Nil skips persistence.
	Store testcase.Store

	Now    func() time.Time
	Logger *zap.Logger
}

// Drop records one rejected candidate.
type Drop struct {
	Index     int                     `json:"index"`
	Candidate map[string]any          `json:"candidate"`
	Error     *action.ValidationError `json:"error"`
}

// Report summarizes what the compiler did with the candidates.
type Report struct {
	Mode       Mode   `json:"mode"`
	Candidates int    `json:"candidates"`
	Accepted   int    `json:"accepted"`
	Dropped    []Drop `json:"dropped,omitempty"`
}

// Result is a successful compilation.
type Result struct {
	TestCase *testcase.TestCase `json:"testCase"`
	Report   Report             `json:"report"`
	Stored   bool               `json:"stored"`
}

// CompilationFailure means no test case was produced or stored.
type CompilationFailure struct {
	Mode    Mode
	Message string
	Report  Report
}

func (e *CompilationFailure) Error() string {
	return fmt.Sprintf("compile (%s): %s", e.Mode, e.Message)
}

// Compile validates candidates in order and, on success, persists the
// resulting test case. It returns *CompilationFailure when no valid actions
// survive or when strict mode meets an invalid candidate, and the store's
// error when persistence fails.
func Compile(ctx context.Context, candidates []map[string]any, opts Options) (*Result, error) {
	if opts.Mode == "" {
		opts.Mode = ModeLossy
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	report := Report{Mode: opts.Mode, Candidates: len(candidates)}
	seq := make(action.Sequence, 0, len(candidates))
	for i, c := range candidates {
		a, verr := action.Validate(c)
		if verr == nil {
			seq = append(seq, a)
			continue
		}
		report.Dropped = append(report.Dropped, Drop{Index: i, Candidate: c, Error: verr})
		if opts.Mode == ModeStrict {
			return nil, &CompilationFailure{
				Mode:    opts.Mode,
				Message: fmt.Sprintf("candidate %d rejected: %v", i, verr),
				Report:  report,
			}
		}
		logger.Warn("dropped candidate action",
			zap.Int("index", i),
			zap.String("field", verr.Field),
			zap.String("reason", string(verr.Reason)),
			zap.String("source", opts.Source))
	}
	report.Accepted = len(seq)

	if len(seq) == 0 {
		return nil, &CompilationFailure{
			Mode:    opts.Mode,
			Message: fmt.Sprintf("no valid actions among %d candidates", len(candidates)),
			Report:  report,
		}
	}

	fp, err := Fingerprint(seq)
	if err != nil {
		return nil, err
	}
	tc := &testcase.TestCase{
		Name:        Name(opts.Source, fp),
		Source:      opts.Source,
		TargetURL:   opts.TargetURL,
		Fingerprint: fp,
		CreatedAt:   opts.Now().UTC().Truncate(time.Millisecond),
		Generator:   opts.Generator,
		Actions:     seq,
	}

	result := &Result{TestCase: tc, Report: report}
	if opts.Store != nil {
		if err := opts.Store.Put(ctx, tc.Name, tc); err != nil {
			return nil, err
		}
		result.Stored = true
	}
	logger.Info("compiled test case",
		zap.String("name", tc.Name),
		zap.Int("actions", len(seq)),
		zap.Int("dropped", len(report.Dropped)))
	return result, nil
}
