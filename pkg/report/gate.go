package report

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// GateEnv is the variable set a gate expression sees.
func GateEnv(r *Report) map[string]any {
	passRate := 1.0
	if r.Summary.Total > 0 {
		passRate = float64(r.Summary.Passed) / float64(r.Summary.Total)
	}
	return map[string]any{
		"total":        r.Summary.Total,
		"passed":       r.Summary.Passed,
		"failed":       r.Summary.Failed,
		"steps":        r.Summary.Steps.Total,
		"stepsPassed":  r.Summary.Steps.Passed,
		"stepsFailed":  r.Summary.Steps.Failed,
		"stepsSkipped": r.Summary.Steps.Skipped,
		"artifacts":    len(r.Artifacts),
		"passRate":     passRate,
		"failedTests":  r.FailedTests(),
		"runId":        r.RunID,
	}
}

// EvaluateGate evaluates a boolean fail-when expression such as
// "failed > 0 || passRate < 0.9" against the report. An empty expression
// falls back to "failed > 0".
func EvaluateGate(expression string, r *Report) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		expression = "failed > 0"
	}
	env := GateEnv(r)
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile gate %q: %w", expression, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval gate %q: %w", expression, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("gate %q did not return bool (got %T: %v)", expression, output, output)
	}
	return result, nil
}
