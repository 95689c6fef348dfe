package report

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nats-io/nats.go"

	"github.com/ormasoftchile/qaflow/pkg/action"
	"github.com/ormasoftchile/qaflow/pkg/engine"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func result(name string, offset time.Duration, steps ...engine.StepOutcome) *engine.ExecutionResult {
	status := engine.StatusPassed
	for _, s := range steps {
		if s.Status != engine.StepPassed {
			status = engine.StatusFailed
		}
	}
	return &engine.ExecutionResult{
		TestCaseName:  name,
		RunID:         "run-1",
		OverallStatus: status,
		Steps:         steps,
		StartedAt:     t0.Add(offset),
		FinishedAt:    t0.Add(offset + time.Second),
	}
}

func passed(kind action.Kind) engine.StepOutcome {
	return engine.StepOutcome{Kind: kind, Status: engine.StepPassed, ElapsedMs: 10}
}

func fixtureResults() []*engine.ExecutionResult {
	return []*engine.ExecutionResult{
		result("login", 0, passed(action.KindNavigate), passed(action.KindClick)),
		result("checkout", time.Second,
			passed(action.KindNavigate),
			engine.StepOutcome{Kind: action.KindAssertText, Status: engine.StepFailed, Reason: "assertion failed", ArtifactRef: "run-1/checkout/step-02-assertText.png", ElapsedMs: 5},
			engine.StepOutcome{Kind: action.KindClick, Status: engine.StepSkipped, Reason: "step 2 failed"},
		),
		result("search", 2*time.Second, passed(action.KindNavigate)),
		result("login", 3*time.Second, passed(action.KindNavigate)),
	}
}

func TestAggregator_Summary(t *testing.T) {
	agg := NewAggregator()
	for _, r := range fixtureResults() {
		if err := agg.Add(r); err != nil {
			t.Fatal(err)
		}
	}
	rep := agg.Close("run-1", t0)

	want := Summary{
		Total:   4,
		Passed:  3,
		Failed:  1,
		Steps:   StepCounts{Total: 7, Passed: 5, Failed: 1, Skipped: 1},
		StepsMs: 55,
	}
	if diff := cmp.Diff(want, rep.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if len(rep.Artifacts) != 1 || rep.Artifacts[0].Step != 2 || rep.Artifacts[0].TestCase != "checkout" {
		t.Errorf("artifacts = %+v", rep.Artifacts)
	}
	if got := rep.FailedTests(); !cmp.Equal(got, []string{"checkout"}) {
		t.Errorf("FailedTests = %v", got)
	}
	if rep.Passed() {
		t.Error("report with a failure must not pass")
	}
}

// Any arrival order, including concurrent adds, yields the same report.
func TestAggregator_OrderIndependent(t *testing.T) {
	build := func(order []int, concurrent bool) *Report {
		rs := fixtureResults()
		agg := NewAggregator()
		if concurrent {
			var wg sync.WaitGroup
			for _, i := range order {
				wg.Add(1)
				go func(r *engine.ExecutionResult) {
					defer wg.Done()
					agg.Add(r)
				}(rs[i])
			}
			wg.Wait()
		} else {
			for _, i := range order {
				agg.Add(rs[i])
			}
		}
		return agg.Close("run-1", t0)
	}

	base := build([]int{0, 1, 2, 3}, false)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		order := rng.Perm(4)
		got := build(order, i%2 == 0)
		if diff := cmp.Diff(base, got); diff != "" {
			t.Fatalf("order %v changed the report (-base +got):\n%s", order, diff)
		}
	}

	names := make([]string, len(base.Results))
	for i, r := range base.Results {
		names[i] = r.TestCaseName
	}
	if !cmp.Equal(names, []string{"checkout", "login", "login", "search"}) {
		t.Errorf("order = %v", names)
	}
}

// Results that agree on name, times, status and attempt still sort by
// content rather than arrival.
func TestAggregator_FullTieIsOrderIndependent(t *testing.T) {
	fail := func(reason string) *engine.ExecutionResult {
		return result("login", 0,
			passed(action.KindNavigate),
			engine.StepOutcome{Kind: action.KindClick, Status: engine.StepFailed, Reason: reason},
		)
	}
	a, b := fail("timeout after 1s waiting for #a"), fail("timeout after 1s waiting for #b")

	ab := Build("run-1", t0, []*engine.ExecutionResult{a, b})
	ba := Build("run-1", t0, []*engine.ExecutionResult{b, a})
	if diff := cmp.Diff(ab, ba); diff != "" {
		t.Fatalf("arrival order changed the report (-ab +ba):\n%s", diff)
	}
	if got := ab.Results[0].Steps[1].Reason; got != "timeout after 1s waiting for #a" {
		t.Errorf("first result reason = %q", got)
	}
}

func TestAggregator_AddAfterClose(t *testing.T) {
	agg := NewAggregator()
	agg.Close("r", t0)
	if err := agg.Add(result("x", 0)); err != ErrClosed {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestAggregator_CopiesResults(t *testing.T) {
	r := result("x", 0, passed(action.KindClick))
	agg := NewAggregator()
	agg.Add(r)
	r.Steps[0].Status = engine.StepFailed
	rep := agg.Close("r", t0)
	if rep.Results[0].Steps[0].Status != engine.StepPassed {
		t.Error("report shares step storage with caller")
	}
}

func TestAggregator_Empty(t *testing.T) {
	rep := NewAggregator().Close("r", t0)
	var buf bytes.Buffer
	if err := WriteJSON(&buf, rep); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"results": []`) {
		t.Errorf("empty report should encode empty lists:\n%s", buf.String())
	}
	if !rep.Passed() {
		t.Error("empty report passes")
	}
}

func TestEvaluateGate(t *testing.T) {
	rep := Build("run-1", t0, fixtureResults())
	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"failed > 0", true},
		{"passRate < 0.5", false},
		{"stepsSkipped >= 1 && artifacts == 1", true},
		{`"checkout" in failedTests`, true},
		{"total == 0", false},
	}
	for _, tt := range tests {
		got, err := EvaluateGate(tt.expr, rep)
		if err != nil {
			t.Fatalf("EvaluateGate(%q): %v", tt.expr, err)
		}
		if got != tt.want {
			t.Errorf("EvaluateGate(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvaluateGate_Errors(t *testing.T) {
	rep := Build("run-1", t0, nil)
	for _, e := range []string{"failed +", "total", "unknownVar > 1"} {
		if _, err := EvaluateGate(e, rep); err == nil {
			t.Errorf("EvaluateGate(%q) should fail", e)
		}
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, Build("run-1", t0, fixtureResults()), PrintOptions{})
	out := buf.String()

	for _, want := range []string{
		"qaflow run run-1",
		GlyphPassed + " login",
		GlyphFailed + " checkout",
		"step 2 assertText: assertion failed",
		"screenshot: run-1/checkout/step-02-assertText.png",
		"4 test cases: 3 passed, 1 failed",
		"7 steps: 5 passed, 1 failed, 1 skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("non-terminal output must not carry ANSI codes")
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.json")
	rep := Build("run-1", t0, fixtureResults())
	if err := (FileSink{Path: path}).Publish(context.Background(), rep); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(rep, got); diff != "" {
		t.Errorf("report round trip (-want +got):\n%s", diff)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestNATSSink(t *testing.T) {
	url := os.Getenv("QAFLOW_TEST_NATS_URL")
	if url == "" {
		t.Skip("QAFLOW_TEST_NATS_URL not set")
	}
	subject := "qaflow.test." + time.Now().Format("150405.000000000")
	subject = strings.ReplaceAll(subject, ".", "-")
	sink, err := DialNATS(url, subject)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	sub, err := nc.SubscribeSync(subject)
	if err != nil {
		t.Fatal(err)
	}
	nc.Flush()

	rep := Build("run-1", t0, fixtureResults())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Publish(ctx, rep); err != nil {
		t.Fatal(err)
	}
	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	var got Report
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Summary != rep.Summary {
		t.Errorf("summary = %+v, want %+v", got.Summary, rep.Summary)
	}
}
