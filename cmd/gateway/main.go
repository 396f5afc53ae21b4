package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/NectarSec/hivetrap/pkg/classify"
	"github.com/NectarSec/hivetrap/pkg/config"
	"github.com/NectarSec/hivetrap/pkg/engine"
	"github.com/NectarSec/hivetrap/pkg/extract"
	"github.com/NectarSec/hivetrap/pkg/llm"
	"github.com/NectarSec/hivetrap/pkg/persona"
	"github.com/NectarSec/hivetrap/pkg/report"
	"github.com/NectarSec/hivetrap/pkg/session"
)

const Version = "0.1.0"

// neutralReply is what malformed or unauthenticated requests get. The caller
// still sees a normal conversational payload; nothing about the response
// reveals that the request was rejected.
const neutralReply = "Hello? I think the message did not come properly. Can you send again?"

// webhookRequest is the inbound message shape. sessionId and message.text
// are required; conversationHistory and metadata are accepted but the engine
// works from its own persisted log.
type webhookRequest struct {
	SessionID string `json:"sessionId"`
	Message   struct {
		Sender    string `json:"sender"`
		Text      string `json:"text"`
		Timestamp string `json:"timestamp"`
	} `json:"message"`
	ConversationHistory []json.RawMessage `json:"conversationHistory"`
	Metadata            struct {
		Channel  string `json:"channel"`
		Language string `json:"language"`
		Locale   string `json:"locale"`
	} `json:"metadata"`
}

// webhookResponse carries only the conversational reply. Classification
// state never travels back on this path; anything the response reveals is
// visible to the scammer's side of the relay.
type webhookResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId,omitempty"`
	Reply     string `json:"reply"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("hivetrap v%s\n", Version)
			return
		case "serve":
			// fall through
		default:
			fmt.Println("Usage:")
			fmt.Println("  hivetrap serve     Start the webhook gateway")
			fmt.Println("  hivetrap version   Show version")
			os.Exit(1)
		}
	}

	cfg := config.NewDefaultConfig()
	cfg.MustValidate()

	runGateway(cfg)
}

func runGateway(cfg *config.Config) {
	store := buildStore(cfg)
	chat := llm.NewFromConfig(cfg)
	if chat != nil {
		log.Printf("✓ LLM provider enabled (%s)", cfg.LLMProvider)
	} else {
		log.Println("○ LLM provider disabled, rules and scripts only")
	}

	var signal classify.Signal
	if cfg.EnableLLMClassifier {
		if s := classify.NewLLMSignal(chat); s != nil {
			signal = s
			log.Println("✓ secondary classification signal enabled")
		}
	}
	var secondary extract.Secondary
	if cfg.EnableLLMExtractor {
		if s := extract.NewLLMSecondary(chat); s != nil {
			secondary = s
			log.Println("✓ secondary extraction pass enabled")
		}
	}
	var responder persona.Responder = persona.NewScripted()
	if cfg.EnableLLMResponder {
		if r := persona.NewLLM(chat); r != nil {
			responder = r
			log.Println("✓ LLM responder enabled (scripted fallback retained)")
		}
	}

	dispatcher := report.New(store, cfg)
	if cfg.CallbackURL == "" {
		log.Println("○ callback dispatch disabled (no URL configured)")
	}

	eng := engine.New(cfg, store,
		classify.New(cfg, signal),
		extract.New(cfg, secondary),
		responder, dispatcher)

	app := fiber.New(fiber.Config{
		AppName: "hivetrap",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		status := "ok"
		if store.Degraded() {
			status = "degraded"
		}
		return c.JSON(fiber.Map{
			"status":   status,
			"version":  Version,
			"dispatch": dispatcher.Stats(),
		})
	})

	// The webhook always answers 200 with a conversational payload. A scammer
	// probing the endpoint must never learn whether a request parsed, matched
	// the key, or tripped anything internally.
	app.Post("/webhook", func(c fiber.Ctx) error {
		reqID := uuid.NewString()

		if cfg.APIKey != "" && c.Get("X-API-Key") != cfg.APIKey {
			log.Printf("[WEBHOOK] req=%s rejected: bad api key", reqID)
			return c.JSON(webhookResponse{Status: "success", Reply: neutralReply})
		}

		var req webhookRequest
		if err := c.Bind().Body(&req); err != nil || strings.TrimSpace(req.SessionID) == "" || req.Message.Text == "" {
			log.Printf("[WEBHOOK] req=%s rejected: malformed payload", reqID)
			return c.JSON(webhookResponse{Status: "success", Reply: neutralReply})
		}

		res := eng.HandleMessage(c.Context(), engine.Inbound{
			SessionID: req.SessionID,
			Text:      req.Message.Text,
			Timestamp: parseTimestamp(req.Message.Timestamp),
		})

		log.Printf("[WEBHOOK] req=%s session=%s level=%s terminated=%v", reqID, req.SessionID, res.Level, res.Terminated)
		return c.JSON(webhookResponse{
			Status:    "success",
			SessionID: req.SessionID,
			Reply:     res.Reply,
		})
	})

	log.Printf("[STARTUP] hivetrap v%s listening on %s", Version, cfg.ListenAddr)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
}

// buildStore wires the two-tier session store. The gateway starts even when
// Redis is down; the store degrades to its in-process tier and recovers on
// its own.
func buildStore(cfg *config.Config) *session.LayeredStore {
	var remote *session.RedisStore
	if cfg.RedisAddr != "" {
		remote = session.NewRedisStore(session.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.SessionKeyPrefix,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := remote.Ping(ctx); err != nil {
			log.Printf("○ Redis unreachable at startup, serving from fallback tier: %v", err)
		} else {
			log.Println("✓ Redis session tier connected")
		}
		cancel()
	} else {
		log.Println("○ no Redis configured, in-process session tier only")
	}
	return session.NewLayeredStore(remote, cfg.FallbackCacheSize, cfg.SessionTTL)
}

// parseTimestamp accepts RFC3339; anything else falls back to receipt time.
func parseTimestamp(s string) time.Time {
	if s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
