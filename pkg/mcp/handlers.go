package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ormasoftchile/qaflow/pkg/action"
	"github.com/ormasoftchile/qaflow/pkg/compiler"
	"github.com/ormasoftchile/qaflow/pkg/runner"
	"github.com/ormasoftchile/qaflow/pkg/testcase"
)

// Handlers carries the dependencies the tools share.
type Handlers struct {
	Store testcase.Store
	// Mode is used when a compile request names none.
	Mode compiler.Mode
	// NewRunner builds a runner for one run request. Nil disables qaflow/run.
	NewRunner func(target string) (*runner.Runner, error)
	Logger    *zap.Logger
}

type candidateResult struct {
	Index    int                     `json:"index"`
	Valid    bool                    `json:"valid"`
	Action   action.Action           `json:"action,omitempty"`
	Error    *action.ValidationError `json:"error,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
}

// HandleValidate implements the qaflow/validate MCP tool.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	candidates, errRes := candidatesArg(req)
	if errRes != nil {
		return errRes, nil
	}
	results := make([]candidateResult, len(candidates))
	invalid := 0
	for i, c := range candidates {
		a, verr := action.Validate(c)
		results[i] = candidateResult{Index: i, Valid: verr == nil, Action: a, Error: verr}
		if verr != nil {
			invalid++
			continue
		}
		results[i].Warnings = action.Lint(a)
	}
	return jsonResult(map[string]any{
		"candidates": len(candidates),
		"invalid":    invalid,
		"results":    results,
	}, invalid > 0), nil
}

// HandleCompile implements the qaflow/compile MCP tool.
func (h *Handlers) HandleCompile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	candidates, errRes := candidatesArg(req)
	if errRes != nil {
		return errRes, nil
	}
	args := req.GetArguments()
	source, _ := args["source"].(string)
	if strings.TrimSpace(source) == "" {
		return errorResult("source argument is required"), nil
	}
	mode := h.Mode
	if m, _ := args["mode"].(string); m != "" {
		parsed, err := compiler.ParseMode(m)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		mode = parsed
	}
	target, _ := args["target"].(string)

	res, err := compiler.Compile(ctx, candidates, compiler.Options{
		Mode:      mode,
		Source:    source,
		TargetURL: target,
		Generator: "mcp",
		Store:     h.Store,
		Logger:    h.Logger,
	})
	if err != nil {
		var cf *compiler.CompilationFailure
		if errors.As(err, &cf) {
			return jsonResult(map[string]any{"error": cf.Error(), "report": cf.Report}, true), nil
		}
		return errorResult(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"name":    res.TestCase.Name,
		"actions": len(res.TestCase.Actions),
		"stored":  res.Stored,
		"report":  res.Report,
	}, false), nil
}

// HandleList implements the qaflow/list MCP tool.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := h.Store.List(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if names == nil {
		names = []string{}
	}
	return jsonResult(map[string]any{"testCases": names}, false), nil
}

// HandleRun implements the qaflow/run MCP tool.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.NewRunner == nil {
		return errorResult("running is not enabled on this server"), nil
	}
	args := req.GetArguments()
	target, _ := args["target"].(string)
	var names []string
	if raw, _ := args["names"].(string); raw != "" {
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}

	r, err := h.NewRunner(target)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	rep, err := r.Run(ctx, names)
	if rep == nil {
		return errorResult(fmt.Sprintf("run: %v", err)), nil
	}
	response := map[string]any{"report": rep}
	if err != nil {
		response["error"] = err.Error()
	}
	return jsonResult(response, err != nil || !rep.Passed()), nil
}

// HandleSchema implements the qaflow/schema MCP tool.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	schemaType, _ := args["type"].(string)

	var data []byte
	var err error
	switch schemaType {
	case "actions":
		data, err = action.GenerateJSONSchema()
	case "testcase":
		data, err = testcase.GenerateJSONSchema()
	default:
		return errorResult(fmt.Sprintf("unknown schema type %q, use 'actions' or 'testcase'", schemaType)), nil
	}
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

func candidatesArg(req mcp.CallToolRequest) ([]map[string]any, *mcp.CallToolResult) {
	raw, _ := req.GetArguments()["actions"].(string)
	if strings.TrimSpace(raw) == "" {
		return nil, errorResult("actions argument is required")
	}
	candidates, err := compiler.ParseCandidates(raw)
	if err != nil {
		return nil, errorResult(fmt.Sprintf("parse actions: %s", err))
	}
	return candidates, nil
}

func jsonResult(v any, isErr bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
