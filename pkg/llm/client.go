// Package llm is a thin OpenAI-compatible chat client shared by the
// secondary classification signal, the secondary extraction pass, and the
// optional LLM responder. All calls are bounded by the caller's context; a
// dead or slow provider is never allowed to fail a webhook request.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/NectarSec/hivetrap/pkg/config"
	"github.com/NectarSec/hivetrap/pkg/httputil"
)

// Client talks to one configured provider.
type Client struct {
	httpc       *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
}

// DefaultTemperature keeps the secondary signals deterministic.
const DefaultTemperature = 0.0

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewFromConfig builds a client for the configured provider, or nil when the
// provider is "none" or a required key is missing. Callers treat a nil
// client as "signal unavailable".
func NewFromConfig(cfg *config.Config) *Client {
	var baseURL, model string

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		baseURL = "http://localhost:11434/v1"
		model = "qwen2.5:7b"
	case config.ProviderOpenRouter:
		baseURL = "https://openrouter.ai/api/v1"
		model = "mistralai/mistral-small-3.1-24b-instruct:free"
	case config.ProviderGroq:
		baseURL = "https://api.groq.com/openai/v1"
		model = "llama-3.1-8b-instant"
	case config.ProviderCustom:
		baseURL = cfg.LLMBaseURL
		model = cfg.LLMModel
	default:
		return nil
	}

	if cfg.LLMBaseURL != "" {
		baseURL = cfg.LLMBaseURL
	}
	if cfg.LLMModel != "" {
		model = cfg.LLMModel
	}
	if baseURL == "" {
		return nil
	}
	if cfg.LLMProvider != config.ProviderOllama && cfg.LLMAPIKey == "" {
		return nil
	}

	return &Client{
		httpc:       httputil.SlowClient(),
		baseURL:     baseURL,
		apiKey:      cfg.LLMAPIKey,
		model:       model,
		temperature: DefaultTemperature,
	}
}

// Chat sends a system+user prompt pair and returns the assistant content.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   300,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg, _ := httputil.ReadErrorBody(resp.Body)
		return "", fmt.Errorf("llm: status %d: %s", resp.StatusCode, truncate(string(msg), 200))
	}

	raw, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
