package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Generator produces scenario text from a prompt. Its output is untrusted.
type Generator interface {
	// Complete sends a system prompt and user prompt to the model and
	// returns the assistant's response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// ModelName returns the model name for provenance tracking.
	ModelName() string
}

// OllamaClient implements Generator against the Ollama chat API.
type OllamaClient struct {
	Host        string // e.g. http://localhost:11434
	Model       string
	Temperature float64
	HTTPClient  *http.Client
}

// OllamaConfig holds configuration for creating an Ollama client.
type OllamaConfig struct {
	Host        string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// NewOllamaClient creates a client from explicit config.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("OLLAMA_HOST is required")
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1:8b"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OllamaClient{
		Host:        strings.TrimRight(cfg.Host, "/"),
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// NewOllamaClientFromEnv creates a client from environment variables:
//
//	OLLAMA_HOST  – optional (default "http://localhost:11434")
//	OLLAMA_MODEL – optional (default "llama3.1:8b")
func NewOllamaClientFromEnv() (*OllamaClient, error) {
	return NewOllamaClient(OllamaConfig{
		Host:        envOrDefault("OLLAMA_HOST", "http://localhost:11434"),
		Model:       envOrDefault("OLLAMA_MODEL", "llama3.1:8b"),
		Temperature: 0.3,
	})
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error"`
}

// ModelName returns the model name.
func (c *OllamaClient) ModelName() string {
	return c.Model
}

// Complete sends a non-streaming chat request.
func (c *OllamaClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Options: map[string]any{"temperature": c.Temperature},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", chatResp.Error)
	}
	return chatResp.Message.Content, nil
}
