package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseCandidates extracts the candidate list from generator output. It
// accepts a bare JSON array, an object with an "actions" array, or either of
// those embedded in prose or a code fence. Elements that are not objects are
// kept as nil candidates so the compiler reports them.
func ParseCandidates(text string) ([]map[string]any, error) {
	text = stripOuterCodeFence(text)
	if v, err := decodeJSON(text); err == nil {
		if list, ok := candidateList(v); ok {
			return list, nil
		}
	}

	// Fall back to the outermost bracketed array in the text.
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON action list found in generator output")
	}
	v, err := decodeJSON(text[start : end+1])
	if err != nil {
		return nil, fmt.Errorf("decode action list: %w", err)
	}
	list, ok := candidateList(v)
	if !ok {
		return nil, fmt.Errorf("action list is not an array")
	}
	return list, nil
}

// LoadCandidatesFile reads candidates from a .json, .yaml/.yml or free-text
// file.
func LoadCandidatesFile(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode candidates yaml: %w", err)
		}
		list, ok := candidateList(v)
		if !ok {
			return nil, fmt.Errorf("%s: expected a list of actions or an actions: key", path)
		}
		return list, nil
	default:
		return ParseCandidates(string(data))
	}
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(s))))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func candidateList(v any) ([]map[string]any, bool) {
	if obj, ok := v.(map[string]any); ok {
		v = obj["actions"]
	}
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	list := make([]map[string]any, len(items))
	for i, item := range items {
		list[i], _ = item.(map[string]any)
	}
	return list, true
}

// stripOuterCodeFence removes a wrapping ```...``` fence if present.
func stripOuterCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") {
		if idx := strings.Index(trimmed, "\n"); idx != -1 {
			trimmed = trimmed[idx+1:]
		}
		if last := strings.LastIndex(trimmed, "```"); last != -1 {
			trimmed = trimmed[:last]
		}
	}
	return trimmed
}
