// Package config holds all tunables for the honeypot gateway. Everything is
// externally supplied: environment variables for deployment settings, an
// optional YAML rules file for the classification and extraction lexicons.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMProvider defines the backend LLM service type for the optional
// secondary classification/extraction signals and the persona responder.
type LLMProvider string

const (
	ProviderNone       LLMProvider = "none"       // Rules only, no LLM anywhere
	ProviderOllama     LLMProvider = "ollama"     // Local Ollama server
	ProviderOpenRouter LLMProvider = "openrouter" // OpenRouter
	ProviderGroq       LLMProvider = "groq"       // Groq
	ProviderCustom     LLMProvider = "custom"     // Any OpenAI-compatible endpoint
)

// Config holds global settings for the honeypot gateway.
// All settings can be configured via environment variables or programmatically.
type Config struct {
	// === Core Settings ===
	ListenAddr string // HTTP listen address (default: ":8080")
	APIKey     string // Inbound webhook key; empty disables the check

	// === Session Store ===
	RedisAddr         string        // Remote tier address; empty = fallback tier only
	RedisPassword     string        //
	RedisDB           int           //
	SessionKeyPrefix  string        // Key schema root (default: "honeypot:session:")
	SessionTTL        time.Duration // Absolute expiry from last write (default: 1h)
	FallbackCacheSize int           // Entry bound for the in-process tier (default: 1000)

	// === Conversation Budget ===
	MaxTurns         int           // Turn ceiling before max_turns termination (default: 10)
	MinHardFields    int           // Non-keyword fields required for extracted_success (default: 1)
	RequestBudget    time.Duration // End-to-end ceiling per inbound message (default: 28s)
	ResponderTimeout time.Duration // Per-call bound on reply generation (default: 8s)

	// === Callback (final report) ===
	CallbackURL         string        // Evaluation endpoint; empty disables dispatch
	CallbackTimeout     time.Duration // Per-attempt bound (default: 5s)
	CallbackMaxRetries  int           // Retries on transient failure (default: 3)
	DispatchConcurrency int           // Concurrent outbound dispatch bound (default: 16)

	// === LLM Provider Configuration ===
	LLMProvider LLMProvider // "ollama", "openrouter", "groq", "custom", "none"
	LLMAPIKey   string      //
	LLMModel    string      //
	LLMBaseURL  string      // Custom base URL for self-hosted providers
	LLMTimeout  time.Duration

	// === Feature Flags ===
	EnableLLMClassifier bool // Secondary classification signal on ambiguous messages
	EnableLLMExtractor  bool // Secondary extraction pass below the sufficiency threshold
	EnableLLMResponder  bool // LLM-backed persona replies (scripted fallback always on)

	// === Lexicons ===
	// Loaded from RulesPath when set, otherwise built-in defaults.
	RulesPath         string
	ConfirmedKeywords []string
	SuspectedKeywords []string
	QuitPhrases       []string
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	cfg := &Config{
		ListenAddr: GetEnv("HONEYPOT_LISTEN_ADDR", ":8080"),
		APIKey:     GetEnv("HONEYPOT_API_KEY", ""),

		RedisAddr:         GetEnv("HONEYPOT_REDIS_ADDR", ""),
		RedisPassword:     GetEnv("HONEYPOT_REDIS_PASSWORD", ""),
		RedisDB:           GetEnvInt("HONEYPOT_REDIS_DB", 0),
		SessionKeyPrefix:  GetEnv("HONEYPOT_SESSION_KEY_PREFIX", "honeypot:session:"),
		SessionTTL:        time.Duration(GetEnvInt("HONEYPOT_SESSION_TTL_SECONDS", 3600)) * time.Second,
		FallbackCacheSize: GetEnvInt("HONEYPOT_FALLBACK_CACHE_SIZE", 1000),

		MaxTurns:         clampInt(GetEnvInt("HONEYPOT_MAX_TURNS", 10), 1, 1000),
		MinHardFields:    clampInt(GetEnvInt("HONEYPOT_MIN_HARD_FIELDS", 1), 1, 4),
		RequestBudget:    time.Duration(GetEnvInt("HONEYPOT_REQUEST_BUDGET_MS", 28000)) * time.Millisecond,
		ResponderTimeout: time.Duration(GetEnvInt("HONEYPOT_RESPONDER_TIMEOUT_MS", 8000)) * time.Millisecond,

		CallbackURL:         GetEnv("HONEYPOT_CALLBACK_URL", ""),
		CallbackTimeout:     time.Duration(GetEnvInt("HONEYPOT_CALLBACK_TIMEOUT_MS", 5000)) * time.Millisecond,
		CallbackMaxRetries:  clampInt(GetEnvInt("HONEYPOT_CALLBACK_MAX_RETRIES", 3), 0, 10),
		DispatchConcurrency: clampInt(GetEnvInt("HONEYPOT_DISPATCH_CONCURRENCY", 16), 1, 256),

		LLMProvider: LLMProvider(GetEnv("HONEYPOT_LLM_PROVIDER", string(ProviderNone))),
		LLMAPIKey:   GetEnv("HONEYPOT_LLM_API_KEY", os.Getenv("OPENROUTER_API_KEY")),
		LLMModel:    GetEnv("HONEYPOT_LLM_MODEL", ""),
		LLMBaseURL:  GetEnv("HONEYPOT_LLM_BASE_URL", ""),
		LLMTimeout:  time.Duration(GetEnvInt("HONEYPOT_LLM_TIMEOUT_MS", 10000)) * time.Millisecond,

		EnableLLMClassifier: GetEnvBool("HONEYPOT_ENABLE_LLM_CLASSIFIER", true),
		EnableLLMExtractor:  GetEnvBool("HONEYPOT_ENABLE_LLM_EXTRACTOR", true),
		EnableLLMResponder:  GetEnvBool("HONEYPOT_ENABLE_LLM_RESPONDER", false),

		RulesPath:         GetEnv("HONEYPOT_RULES_PATH", ""),
		ConfirmedKeywords: defaultConfirmedKeywords(),
		SuspectedKeywords: defaultSuspectedKeywords(),
		QuitPhrases:       defaultQuitPhrases(),
	}

	if cfg.RulesPath != "" {
		if err := cfg.LoadRules(cfg.RulesPath); err != nil {
			log.Printf("[WARN] failed to load rules file %s, using built-in lexicons: %v", cfg.RulesPath, err)
		}
	}

	return cfg
}

// NewLocalConfig creates a Config optimized for local-only operation: no
// remote store, no callback endpoint, no LLM calls.
func NewLocalConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.RedisAddr = ""
	cfg.CallbackURL = ""
	cfg.LLMProvider = ProviderNone
	cfg.EnableLLMClassifier = false
	cfg.EnableLLMExtractor = false
	cfg.EnableLLMResponder = false
	return cfg
}

// rulesFile is the YAML shape of an external lexicon file.
type rulesFile struct {
	ConfirmedKeywords []string `yaml:"confirmed_keywords"`
	SuspectedKeywords []string `yaml:"suspected_keywords"`
	QuitPhrases       []string `yaml:"quit_phrases"`
}

// LoadRules replaces the built-in lexicons with the contents of a YAML file.
// Sections absent from the file keep their current values.
func (c *Config) LoadRules(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var rf rulesFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return fmt.Errorf("parse rules file: %w", err)
	}
	if len(rf.ConfirmedKeywords) > 0 {
		c.ConfirmedKeywords = rf.ConfirmedKeywords
	}
	if len(rf.SuspectedKeywords) > 0 {
		c.SuspectedKeywords = rf.SuspectedKeywords
	}
	if len(rf.QuitPhrases) > 0 {
		c.QuitPhrases = rf.QuitPhrases
	}
	return nil
}

// Validate checks that all required configuration is present.
// In production mode this returns an error if critical settings are missing;
// in development it logs warnings and allows startup for local testing.
func (c *Config) Validate() error {
	isProduction := strings.ToLower(os.Getenv("HONEYPOT_ENV")) == "production" ||
		strings.ToLower(os.Getenv("HONEYPOT_ENV")) == "prod"

	var missing []string
	if c.CallbackURL == "" {
		missing = append(missing, "HONEYPOT_CALLBACK_URL (final report endpoint)")
	}
	if c.APIKey == "" {
		missing = append(missing, "HONEYPOT_API_KEY (inbound webhook authentication)")
	}
	if c.RedisAddr == "" {
		missing = append(missing, "HONEYPOT_REDIS_ADDR (durable session tier)")
	}

	if !isProduction {
		for _, m := range missing {
			log.Printf("[STARTUP] Warning: missing setting: %s", m)
		}
		return nil
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: configuration validation failed: %v", err)
	}
	log.Println("[STARTUP] configuration validated")
}

// clampInt ensures a value is within bounds.
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
