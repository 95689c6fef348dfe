// Package report aggregates execution results into a run report.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ormasoftchile/qaflow/pkg/engine"
)

// ErrClosed is returned by Add after Close.
var ErrClosed = errors.New("aggregator is closed")

// StepCounts totals step outcomes across every result.
type StepCounts struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Summary aggregates counts across results.
type Summary struct {
	Total   int        `json:"total"`
	Passed  int        `json:"passed"`
	Failed  int        `json:"failed"`
	Steps   StepCounts `json:"steps"`
	StepsMs int64      `json:"stepsMs"`
}

// ArtifactEntry indexes one failure artifact back to its step.
type ArtifactEntry struct {
	Ref      string            `json:"ref"`
	TestCase string            `json:"testCase"`
	Attempt  int               `json:"attempt,omitempty"`
	Step     int               `json:"step"`
	Kind     string            `json:"kind"`
	Status   engine.StepStatus `json:"status"`
}

// Report is the aggregate of one run.
type Report struct {
	RunID       string                    `json:"runId"`
	GeneratedAt time.Time                 `json:"generatedAt"`
	Summary     Summary                   `json:"summary"`
	Results     []*engine.ExecutionResult `json:"results"`
	Artifacts   []ArtifactEntry           `json:"artifacts"`
}

// Passed reports whether every result passed.
func (r *Report) Passed() bool {
	return r.Summary.Failed == 0
}

// FailedTests returns the names of failed test cases in report order,
// without duplicates.
func (r *Report) FailedTests() []string {
	var names []string
	seen := make(map[string]bool)
	for _, res := range r.Results {
		if !res.Passed() && !seen[res.TestCaseName] {
			seen[res.TestCaseName] = true
			names = append(names, res.TestCaseName)
		}
	}
	return names
}

// Aggregator collects results concurrently. The Report it produces depends
// only on the set of results added, not on their arrival order.
type Aggregator struct {
	mu      sync.Mutex
	results []*engine.ExecutionResult
	closed  bool
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add records a result. The result is copied; later changes by the caller
// do not affect the report.
func (a *Aggregator) Add(res *engine.ExecutionResult) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}
	cp := *res
	cp.Steps = append([]engine.StepOutcome(nil), res.Steps...)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.results = append(a.results, &cp)
	return nil
}

// Len returns the number of results added so far.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results)
}

// Close seals the aggregator and builds the report.
func (a *Aggregator) Close(runID string, at time.Time) *Report {
	a.mu.Lock()
	a.closed = true
	results := append([]*engine.ExecutionResult(nil), a.results...)
	a.mu.Unlock()

	return Build(runID, at, results)
}

// Build aggregates results into a report. results is reordered in place.
func Build(runID string, at time.Time, results []*engine.ExecutionResult) *Report {
	sort.SliceStable(results, func(i, j int) bool {
		return lessResult(results[i], results[j])
	})

	r := &Report{
		RunID:       runID,
		GeneratedAt: at.UTC(),
		Results:     results,
		Artifacts:   []ArtifactEntry{},
	}
	if r.Results == nil {
		r.Results = []*engine.ExecutionResult{}
	}
	for _, res := range results {
		r.Summary.Total++
		if res.Passed() {
			r.Summary.Passed++
		} else {
			r.Summary.Failed++
		}
		for i, s := range res.Steps {
			r.Summary.Steps.Total++
			r.Summary.StepsMs += s.ElapsedMs
			switch s.Status {
			case engine.StepPassed:
				r.Summary.Steps.Passed++
			case engine.StepFailed:
				r.Summary.Steps.Failed++
			case engine.StepSkipped:
				r.Summary.Steps.Skipped++
			}
			if s.ArtifactRef != "" {
				r.Artifacts = append(r.Artifacts, ArtifactEntry{
					Ref:      s.ArtifactRef,
					TestCase: res.TestCaseName,
					Attempt:  res.Attempt,
					Step:     i + 1,
					Kind:     string(s.Kind),
					Status:   s.Status,
				})
			}
		}
	}
	sort.SliceStable(r.Artifacts, func(i, j int) bool {
		a, b := r.Artifacts[i], r.Artifacts[j]
		if a.Ref != b.Ref {
			return a.Ref < b.Ref
		}
		if a.TestCase != b.TestCase {
			return a.TestCase < b.TestCase
		}
		if a.Step != b.Step {
			return a.Step < b.Step
		}
		if a.Attempt != b.Attempt {
			return a.Attempt < b.Attempt
		}
		return a.Status < b.Status
	})
	return r
}

func lessResult(a, b *engine.ExecutionResult) bool {
	if a.TestCaseName != b.TestCaseName {
		return a.TestCaseName < b.TestCaseName
	}
	if !a.StartedAt.Equal(b.StartedAt) {
		return a.StartedAt.Before(b.StartedAt)
	}
	if !a.FinishedAt.Equal(b.FinishedAt) {
		return a.FinishedAt.Before(b.FinishedAt)
	}
	if a.OverallStatus != b.OverallStatus {
		return a.OverallStatus < b.OverallStatus
	}
	if a.Attempt != b.Attempt {
		return a.Attempt < b.Attempt
	}
	// Remaining ties fall back to the encoded result so that no field
	// leaves the order to arrival.
	return bytes.Compare(resultKey(a), resultKey(b)) < 0
}

func resultKey(r *engine.ExecutionResult) []byte {
	data, _ := json.Marshal(r)
	return data
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ReadFile loads a report written by WriteJSON.
func ReadFile(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
