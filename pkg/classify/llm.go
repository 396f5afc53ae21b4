package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/NectarSec/hivetrap/pkg/llm"
	"github.com/NectarSec/hivetrap/pkg/session"
)

const assessSystemPrompt = `You are a scam detection system. Analyze the message and recent conversation for scam indicators: urgency or fear tactics, requests for OTP/PIN/passwords, suspicious links or payment IDs, impersonation of bank or government officials, too-good-to-be-true offers.

Answer with exactly one word: safe, suspected, or confirmed.
Be conservative: only answer confirmed if there is clear evidence of scam intent.`

// LLMSignal adapts the shared chat client to the classifier's Signal
// interface. The model's free-text answer is coerced into the level enum;
// anything unrecognizable counts as safe.
type LLMSignal struct {
	client *llm.Client
}

// NewLLMSignal wraps a chat client; returns nil for a nil client so wiring
// stays a one-liner at startup.
func NewLLMSignal(client *llm.Client) *LLMSignal {
	if client == nil {
		return nil
	}
	return &LLMSignal{client: client}
}

// Assess asks the model for a level on an ambiguous message. The last few
// history entries provide context, trimmed hard to bound prompt size.
func (s *LLMSignal) Assess(ctx context.Context, text string, history []session.Message) (session.Level, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Current message: %s\n", text)
	if n := len(history); n > 0 {
		b.WriteString("Recent history:\n")
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, m := range history[start:] {
			line := m.Text
			if len(line) > 100 {
				line = line[:100]
			}
			fmt.Fprintf(&b, "- %s: %s\n", m.Sender, line)
		}
	}

	answer, err := s.client.Chat(ctx, assessSystemPrompt, b.String())
	if err != nil {
		return session.LevelSafe, err
	}

	lower := strings.ToLower(answer)
	switch {
	case strings.Contains(lower, "confirmed"):
		return session.LevelConfirmed, nil
	case strings.Contains(lower, "suspected"):
		return session.LevelSuspected, nil
	default:
		return session.LevelSafe, nil
	}
}
