package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ormasoftchile/qaflow/pkg/action"
)

// GenerateRequest describes the source artifact to generate a scenario for.
type GenerateRequest struct {
	SourcePath string
	SourceCode string // read from SourcePath when empty
	TargetURL  string
	Hints      []string
}

// Generation is the raw outcome of asking the generator for candidates.
type Generation struct {
	Candidates []map[string]any
	Model      string
	Raw        string
	// Fallback is set when the generator output was unusable and the
	// built-in smoke scenario was substituted.
	Fallback bool
	Err      error
}

// Generate asks gen for a candidate action list. A generator or parse failure
// is not fatal: the smoke scenario from FallbackCandidates is returned and
// the cause is kept in Generation.Err.
func Generate(ctx context.Context, gen Generator, req GenerateRequest, logger *zap.Logger) (*Generation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if req.SourceCode == "" {
		data, err := os.ReadFile(req.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("read source: %w", err)
		}
		req.SourceCode = string(data)
	}
	schema, err := action.GenerateJSONSchema()
	if err != nil {
		return nil, err
	}
	data := PromptData{
		JSONSchema: string(schema),
		SourceName: filepath.Base(req.SourcePath),
		SourceCode: req.SourceCode,
		TargetURL:  req.TargetURL,
		Hints:      req.Hints,
	}
	system, err := RenderSystemPrompt(data)
	if err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}
	user, err := RenderUserPrompt(data)
	if err != nil {
		return nil, fmt.Errorf("render user prompt: %w", err)
	}

	g := &Generation{Model: gen.ModelName()}
	g.Raw, g.Err = gen.Complete(ctx, system, user)
	if g.Err == nil {
		g.Candidates, g.Err = ParseCandidates(g.Raw)
		if g.Err == nil && len(g.Candidates) == 0 {
			g.Err = fmt.Errorf("generator returned an empty action list")
		}
	}
	if g.Err != nil {
		logger.Warn("generator output unusable, using smoke scenario",
			zap.String("source", req.SourcePath),
			zap.String("model", g.Model),
			zap.Error(g.Err))
		g.Candidates = FallbackCandidates(req.TargetURL)
		g.Fallback = true
	}
	return g, nil
}

// FallbackCandidates is a smoke scenario: load the target and check that the
// page rendered a body.
func FallbackCandidates(targetURL string) []map[string]any {
	if targetURL == "" {
		targetURL = "/"
	}
	return []map[string]any{
		{"action": "navigate", "url": targetURL},
		{"action": "wait", "selector": "body"},
		{"action": "assertVisible", "selector": "body"},
	}
}
