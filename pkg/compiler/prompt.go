package compiler

import (
	"bytes"
	"text/template"
)

// SystemPrompt is sent as the system message to the model. It fixes the
// action vocabulary and the output format.
const SystemPrompt = `You are a senior QA automation engineer. You write end-to-end browser tests
for the UI code you are given. Always assert the key functionality and the user interactions the
code supports, and prefer stable selectors (ids, data-testid, roles) over layout-dependent ones.

You MUST answer with a single JSON array of actions and nothing else. Every element is one of:

{"action": "navigate", "url": "<absolute URL or path relative to the target>"}
{"action": "click", "selector": "<CSS selector>"}
{"action": "fill", "selector": "<CSS selector>", "text": "<text to type>"}
{"action": "assertText", "selector": "<CSS selector>", "text": "<expected text>"}
{"action": "assertVisible", "selector": "<CSS selector>"}
{"action": "wait", "selector": "<CSS selector>"}
{"action": "wait", "durationMs": <milliseconds>}

Any element may carry "timeoutMs": <milliseconds> to override the default timeout.
Do not invent other action kinds. The JSON Schema for the array is:

` + "```json" + `
{{ .JSONSchema }}
` + "```"

// UserPromptTemplate carries the source under test.
const UserPromptTemplate = `Target application: {{ .TargetURL }}
Source file: {{ .SourceName }}
{{- if .Hints }}
Focus on:
{{- range .Hints }}
- {{ . }}
{{- end }}
{{- end }}

` + "```" + `
{{ .SourceCode }}
` + "```" + `

Produce the JSON action array for one test that starts by navigating to the target.`

var (
	systemTemplate = template.Must(template.New("system").Parse(SystemPrompt))
	userTemplate   = template.Must(template.New("user").Parse(UserPromptTemplate))
)

// PromptData holds the data for rendering the prompt templates.
type PromptData struct {
	JSONSchema string
	SourceName string
	SourceCode string
	TargetURL  string
	Hints      []string
}

// RenderSystemPrompt renders the system prompt with the embedded schema.
func RenderSystemPrompt(data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := systemTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderUserPrompt renders the user prompt with the source under test.
func RenderUserPrompt(data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
