package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/NectarSec/hivetrap/pkg/session"
)

// Responder produces the persona's next reply to an inbound message.
type Responder interface {
	Respond(ctx context.Context, s *session.Session, inbound string) (string, error)
}

// stallScripts keep the scammer engaged when nothing in the message calls for
// a specific reaction. Rotated by turn count so consecutive replies differ.
var stallScripts = []string{
	"Ok ok, I am trying. But my phone is showing some error, what should I press?",
	"One minute, my grandson usually helps me with this. Can you explain step by step?",
	"I did not understand properly. You want me to open which app?",
	"Wait, the screen went black. Let me switch on the light. Now tell me again?",
	"Accha, and after that what I have to do? Please go slowly.",
	"My internet is very slow today. The page is still loading. Should I wait?",
}

// Scripted is the deterministic responder. It reacts to what the message
// asks for, hands out the persona's fabricated identifiers on request, and
// stalls otherwise. Never fails.
type Scripted struct{}

// NewScripted returns the deterministic responder.
func NewScripted() *Scripted { return &Scripted{} }

// Respond picks a reply from the scripted reaction table.
func (r *Scripted) Respond(_ context.Context, s *session.Session, inbound string) (string, error) {
	lower := strings.ToLower(inbound)
	p := s.Persona

	switch {
	case containsAny(lower, "your number", "phone number", "mobile number", "contact number"):
		return fmt.Sprintf("My number is %s. But I don't get many calls on it, network problem in our area.", p.FakePhone), nil
	case containsAny(lower, "upi", "gpay", "phonepe", "paytm"):
		return fmt.Sprintf("I have UPI only, my son made it for me. It is %s. Is that what you need?", p.FakeUPI), nil
	case containsAny(lower, "account number", "bank account", "ifsc"):
		return fmt.Sprintf("I have written it in my diary, one minute. Account is %s and that IFSC thing is %s. Did I read it correctly?", p.FakeBankAccount, p.FakeIFSC), nil
	case containsAny(lower, "otp", "code", "pin"):
		return "It is not coming. No message received yet. Sometimes the messages come after one hour only. Can you send it again?", nil
	case containsAny(lower, "your name", "who are you", "who is this"):
		return fmt.Sprintf("I am %s, from %s. Who is speaking?", p.Name, p.Location), nil
	case containsAny(lower, "link", "click", "website"):
		return "I clicked but it is showing some warning. Should I press yes or no? I don't want to break my phone.", nil
	}

	return stallScripts[s.TurnCount%len(stallScripts)], nil
}

func containsAny(lower string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
