package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandGenerator implements Generator by running a local model CLI such as
// "ollama run llama3.1:8b" or "llm -m gpt-4o". The combined prompt is written
// to the process's stdin and stdout is taken as the response.
type CommandGenerator struct {
	// Argv is the command and its arguments.
	Argv []string
	// Timeout for the process (default: 5 minutes).
	Timeout time.Duration
}

// NewCommandGenerator splits a command line on whitespace.
func NewCommandGenerator(command string) (*CommandGenerator, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("generator command is empty")
	}
	return &CommandGenerator{Argv: argv, Timeout: 5 * time.Minute}, nil
}

// ModelName returns the command line for provenance tracking.
func (c *CommandGenerator) ModelName() string {
	return "cmd:" + strings.Join(c.Argv, " ")
}

// Complete runs the command once per call.
func (c *CommandGenerator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if len(c.Argv) == 0 {
		return "", fmt.Errorf("generator command is empty")
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"SYSTEM INSTRUCTIONS (follow these exactly):\n\n%s\n\n---\n\nUSER REQUEST:\n\n%s\n",
		systemPrompt, userPrompt,
	)
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "(no stderr)"
		}
		return "", fmt.Errorf("%s failed: %w\nstderr: %s", c.Argv[0], err, detail)
	}
	output := stdout.String()
	if strings.TrimSpace(output) == "" {
		return "", fmt.Errorf("%s returned empty output", c.Argv[0])
	}
	return output, nil
}
