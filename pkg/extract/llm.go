package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NectarSec/hivetrap/pkg/llm"
	"github.com/NectarSec/hivetrap/pkg/session"
)

const proposeSystemPrompt = `You extract financial identifiers from scam messages. Given a message, return a JSON object with these keys, each a list of strings found verbatim in the message:
{"bankAccounts": [], "upiIds": [], "phishingLinks": [], "phoneNumbers": []}

Only include values literally present in the message. Return the JSON object and nothing else.`

// LLMSecondary proposes identifier candidates from free text for cases the
// pattern tables missed (obfuscated or spaced-out values). Every candidate is
// still format-validated by the extractor before it is kept.
type LLMSecondary struct {
	client *llm.Client
}

// NewLLMSecondary wraps a chat client; returns nil for a nil client.
func NewLLMSecondary(client *llm.Client) *LLMSecondary {
	if client == nil {
		return nil
	}
	return &LLMSecondary{client: client}
}

// Propose asks the model for candidate identifiers in one message.
func (s *LLMSecondary) Propose(ctx context.Context, text string) (session.Intelligence, error) {
	answer, err := s.client.Chat(ctx, proposeSystemPrompt, text)
	if err != nil {
		return session.Intelligence{}, err
	}

	var parsed struct {
		BankAccounts  []string `json:"bankAccounts"`
		UPIIDs        []string `json:"upiIds"`
		PhishingLinks []string `json:"phishingLinks"`
		PhoneNumbers  []string `json:"phoneNumbers"`
	}
	if err := json.Unmarshal([]byte(stripFences(answer)), &parsed); err != nil {
		return session.Intelligence{}, fmt.Errorf("extract: decode candidates: %w", err)
	}

	return session.Intelligence{
		BankAccounts:  parsed.BankAccounts,
		UPIIDs:        parsed.UPIIDs,
		PhishingLinks: parsed.PhishingLinks,
		PhoneNumbers:  parsed.PhoneNumbers,
	}, nil
}

// stripFences removes a markdown code fence wrapper if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
