package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NectarSec/hivetrap/pkg/config"
)

func TestNewFromConfig_Disabled(t *testing.T) {
	cfg := config.NewLocalConfig()
	if c := NewFromConfig(cfg); c != nil {
		t.Error("provider none should yield nil client")
	}

	cfg.LLMProvider = config.ProviderGroq
	cfg.LLMAPIKey = ""
	if c := NewFromConfig(cfg); c != nil {
		t.Error("hosted provider without key should yield nil client")
	}
}

func TestNewFromConfig_CustomOverrides(t *testing.T) {
	cfg := config.NewLocalConfig()
	cfg.LLMProvider = config.ProviderCustom
	cfg.LLMBaseURL = "http://inference.internal:9000/v1"
	cfg.LLMModel = "local-model"
	cfg.LLMAPIKey = "k"

	c := NewFromConfig(cfg)
	if c == nil {
		t.Fatal("custom provider with URL and key should yield a client")
	}
	if c.baseURL != "http://inference.internal:9000/v1" || c.model != "local-model" {
		t.Errorf("client = %+v", c)
	}
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("request did not parse: %v", err)
		}
		if req["model"] != "m1" {
			t.Errorf("model = %v", req["model"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "suspected"}},
			},
		})
	}))
	defer srv.Close()

	cfg := config.NewLocalConfig()
	cfg.LLMProvider = config.ProviderCustom
	cfg.LLMBaseURL = srv.URL
	cfg.LLMModel = "m1"
	cfg.LLMAPIKey = "test-key"

	c := NewFromConfig(cfg)
	got, err := c.Chat(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got != "suspected" {
		t.Errorf("Chat = %q, want suspected", got)
	}
}

func TestChat_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := config.NewLocalConfig()
	cfg.LLMProvider = config.ProviderCustom
	cfg.LLMBaseURL = srv.URL
	cfg.LLMModel = "m1"
	cfg.LLMAPIKey = "k"

	c := NewFromConfig(cfg)
	if _, err := c.Chat(context.Background(), "s", "u"); err == nil {
		t.Error("expected error for non-200 response")
	}
}
