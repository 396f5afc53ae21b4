package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.MaxTurns != 10 {
		t.Errorf("MaxTurns = %d, want 10", cfg.MaxTurns)
	}
	if cfg.MinHardFields != 1 {
		t.Errorf("MinHardFields = %d, want 1", cfg.MinHardFields)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("SessionTTL = %v, want 1h", cfg.SessionTTL)
	}
	if cfg.SessionKeyPrefix != "honeypot:session:" {
		t.Errorf("SessionKeyPrefix = %q", cfg.SessionKeyPrefix)
	}
	if len(cfg.ConfirmedKeywords) == 0 || len(cfg.SuspectedKeywords) == 0 || len(cfg.QuitPhrases) == 0 {
		t.Error("built-in lexicons should not be empty")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HONEYPOT_MAX_TURNS", "5")
	t.Setenv("HONEYPOT_LISTEN_ADDR", ":9999")
	t.Setenv("HONEYPOT_ENABLE_LLM_RESPONDER", "true")

	cfg := NewDefaultConfig()
	if cfg.MaxTurns != 5 {
		t.Errorf("MaxTurns = %d, want 5", cfg.MaxTurns)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want :9999", cfg.ListenAddr)
	}
	if !cfg.EnableLLMResponder {
		t.Error("EnableLLMResponder should be true")
	}
}

func TestEnvClamping(t *testing.T) {
	t.Setenv("HONEYPOT_MAX_TURNS", "0")
	t.Setenv("HONEYPOT_MIN_HARD_FIELDS", "99")

	cfg := NewDefaultConfig()
	if cfg.MaxTurns != 1 {
		t.Errorf("MaxTurns = %d, want clamped to 1", cfg.MaxTurns)
	}
	if cfg.MinHardFields != 4 {
		t.Errorf("MinHardFields = %d, want clamped to 4", cfg.MinHardFields)
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `confirmed_keywords:
  - send bitcoin
suspected_keywords:
  - act now
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	defaultQuits := len(cfg.QuitPhrases)
	if err := cfg.LoadRules(path); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	if len(cfg.ConfirmedKeywords) != 1 || cfg.ConfirmedKeywords[0] != "send bitcoin" {
		t.Errorf("ConfirmedKeywords = %v", cfg.ConfirmedKeywords)
	}
	if len(cfg.SuspectedKeywords) != 1 || cfg.SuspectedKeywords[0] != "act now" {
		t.Errorf("SuspectedKeywords = %v", cfg.SuspectedKeywords)
	}
	// Section absent from the file keeps the built-in lexicon.
	if len(cfg.QuitPhrases) != defaultQuits {
		t.Errorf("QuitPhrases = %d entries, want %d", len(cfg.QuitPhrases), defaultQuits)
	}
}

func TestLoadRules_BadFile(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.LoadRules("/does/not/exist.yaml"); err == nil {
		t.Error("expected error for missing file")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("{{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := cfg.LoadRules(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestValidate_Development(t *testing.T) {
	t.Setenv("HONEYPOT_ENV", "development")
	cfg := NewLocalConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("development validation should pass with warnings, got: %v", err)
	}
}

func TestValidate_Production(t *testing.T) {
	t.Setenv("HONEYPOT_ENV", "production")
	cfg := NewLocalConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("production validation should fail without callback URL, API key, and Redis")
	}

	cfg.CallbackURL = "https://evaluator.example/report"
	cfg.APIKey = "k"
	cfg.RedisAddr = "localhost:6379"
	if err := cfg.Validate(); err != nil {
		t.Errorf("production validation should pass when configured, got: %v", err)
	}
}
