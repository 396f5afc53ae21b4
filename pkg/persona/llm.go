package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/NectarSec/hivetrap/pkg/llm"
	"github.com/NectarSec/hivetrap/pkg/session"
)

const replySystemTemplate = `You are roleplaying %s, a %d year old %s from %s. Personality: %s.

You are talking to a scammer who thinks you are a real victim. Stay in character. Act willing but slow and confused, so the scammer keeps explaining and reveals payment details. Never send real money or real information. If asked for your details you may give exactly these fabricated ones and no others: phone %s, UPI %s, account %s, IFSC %s.

Reply with one or two short sentences in simple Indian English. Do not reveal you are not real.`

// LLM generates in-character replies with a chat model and falls back to the
// scripted responder when the model fails or the budget runs out. A webhook
// request always gets a reply from this type.
type LLM struct {
	client   *llm.Client
	fallback *Scripted
}

// NewLLM wraps a chat client; returns nil for a nil client so wiring can
// fall straight through to the scripted responder.
func NewLLM(client *llm.Client) *LLM {
	if client == nil {
		return nil
	}
	return &LLM{client: client, fallback: NewScripted()}
}

// Respond asks the model for the persona's next line.
func (r *LLM) Respond(ctx context.Context, s *session.Session, inbound string) (string, error) {
	p := s.Persona
	system := fmt.Sprintf(replySystemTemplate,
		p.Name, p.Age, p.Occupation, p.Location, p.Trait,
		p.FakePhone, p.FakeUPI, p.FakeBankAccount, p.FakeIFSC)

	var b strings.Builder
	for _, m := range s.Messages {
		role := "You"
		if m.Sender == session.SenderScammer {
			role = "Them"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Text)
	}
	fmt.Fprintf(&b, "Them: %s\nYou:", inbound)

	answer, err := r.client.Chat(ctx, system, b.String())
	if err != nil {
		return r.fallback.Respond(ctx, s, inbound)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return r.fallback.Respond(ctx, s, inbound)
	}
	return answer, nil
}
