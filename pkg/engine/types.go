package engine

import (
	"fmt"
	"time"

	"github.com/ormasoftchile/qaflow/pkg/action"
)

// State is the lifecycle state of one test case execution.
type State string

const (
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateCompleted    State = "completed"
	StateAborted      State = "aborted"
)

// StepStatus is the outcome of one action.
type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// Status is the overall outcome of a test case.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// StepOutcome records the execution of one action.
type StepOutcome struct {
	Kind        action.Kind `json:"kind"`
	Status      StepStatus  `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	ArtifactRef string      `json:"artifactRef,omitempty"`
	ElapsedMs   int64       `json:"elapsedMs"`
}

// ExecutionResult is the terminal record of one test case run.
type ExecutionResult struct {
	TestCaseName  string        `json:"testCaseName"`
	RunID         string        `json:"runId,omitempty"`
	Attempt       int           `json:"attempt,omitempty"`
	TargetURL     string        `json:"targetUrl,omitempty"`
	OverallStatus Status        `json:"overallStatus"`
	Steps         []StepOutcome `json:"steps"`
	StartedAt     time.Time     `json:"startedAt"`
	FinishedAt    time.Time     `json:"finishedAt"`
	// Error carries an infrastructure failure message (session error,
	// cancellation), empty for ordinary step failures.
	Error string `json:"error,omitempty"`
}

// Passed reports whether every step passed.
func (r *ExecutionResult) Passed() bool {
	return r.OverallStatus == StatusPassed
}

// Duration is the wall-clock span of the run.
func (r *ExecutionResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Counts returns passed, failed and skipped step counts.
func (r *ExecutionResult) Counts() (passed, failed, skipped int) {
	for _, s := range r.Steps {
		switch s.Status {
		case StepPassed:
			passed++
		case StepFailed:
			failed++
		case StepSkipped:
			skipped++
		}
	}
	return
}

// Timeouts are the per-kind defaults. Navigation is expected to be the
// slowest and assertions the quickest.
type Timeouts struct {
	Navigation  time.Duration `yaml:"navigation" json:"navigation"`
	Interaction time.Duration `yaml:"interaction" json:"interaction"`
	Assertion   time.Duration `yaml:"assertion" json:"assertion"`
}

// DefaultTimeouts returns 30s / 10s / 5s.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigation:  30 * time.Second,
		Interaction: 10 * time.Second,
		Assertion:   5 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultTimeouts.
func (t Timeouts) WithDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Navigation <= 0 {
		t.Navigation = d.Navigation
	}
	if t.Interaction <= 0 {
		t.Interaction = d.Interaction
	}
	if t.Assertion <= 0 {
		t.Assertion = d.Assertion
	}
	return t
}

// Validate enforces navigation > interaction > assertion.
func (t Timeouts) Validate() error {
	if !(t.Navigation > t.Interaction && t.Interaction > t.Assertion && t.Assertion > 0) {
		return fmt.Errorf("timeouts must satisfy navigation (%s) > interaction (%s) > assertion (%s) > 0",
			t.Navigation, t.Interaction, t.Assertion)
	}
	return nil
}

// For returns the timeout that applies to a: its own override, else the kind
// default. A duration wait gets its duration on top of the interaction
// timeout.
func (t Timeouts) For(a action.Action) time.Duration {
	if d := a.Timeout(); d > 0 {
		return d
	}
	var d time.Duration
	switch a.Kind().Category() {
	case action.CategoryNavigation:
		d = t.Navigation
	case action.CategoryAssertion:
		d = t.Assertion
	default:
		d = t.Interaction
	}
	if w, ok := a.(action.Wait); ok && w.Selector == "" {
		d += w.Duration
	}
	return d
}
