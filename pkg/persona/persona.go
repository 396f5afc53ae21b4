// Package persona supplies the decoy identity a session presents to the
// scammer and the reply generation that keeps the conversation going. Every
// value a persona hands out (phone, UPI ID, bank account) is fabricated at
// session start; nothing real ever crosses the wire.
package persona

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/NectarSec/hivetrap/pkg/session"
)

// FallbackReply goes out whenever reply generation fails or runs out of
// budget. Bland, in-character, and always safe to send.
const FallbackReply = "Sorry beta, I think my internet is slow. Please tell me again what to do?"

// templates are the identities sessions are assigned from, picked by session
// id hash so the same session always resolves to the same persona.
var templates = []session.Persona{
	{
		Name:       "Ramesh Kumar",
		Age:        67,
		Location:   "Pune",
		Occupation: "retired bank clerk",
		Trait:      "polite, easily confused by technology, asks everything twice",
	},
	{
		Name:       "Sunita Deshpande",
		Age:        58,
		Location:   "Nagpur",
		Occupation: "school teacher",
		Trait:      "chatty, trusting, keeps mixing up app names",
	},
	{
		Name:       "S. R. Iyer",
		Age:        71,
		Location:   "Chennai",
		Occupation: "retired professor",
		Trait:      "formal, long-winded, insists on understanding every step",
	},
	{
		Name:       "Harprit Singh",
		Age:        63,
		Location:   "Ludhiana",
		Occupation: "shop owner",
		Trait:      "friendly, slow to act, blames his old phone for everything",
	},
}

var upiHandles = []string{"ybl", "oksbi", "paytm", "axl"}

var bankNames = []string{"SBIN", "HDFC", "ICIC", "PUNB"}

// EnsurePersona assigns a persona to the session if it doesn't have one yet.
// Assignment is deterministic in the session id; fabricated identifiers are
// generated once and persisted with the session.
func EnsurePersona(s *session.Session) {
	if s.Persona.Name != "" {
		return
	}
	p := templates[hash(s.SessionID)%uint32(len(templates))]

	rng := rand.New(rand.NewSource(int64(hash(s.SessionID))))
	p.FakePhone = fakePhone(rng)
	p.FakeUPI = fakeUPI(rng, p.Name)
	p.FakeBankAccount = fakeAccount(rng)
	p.FakeIFSC = fakeIFSC(rng)

	s.Persona = p
}

func fakePhone(rng *rand.Rand) string {
	// Leading digit 6-9, same shape as a real Indian mobile number.
	digits := make([]byte, 10)
	digits[0] = byte('6' + rng.Intn(4))
	for i := 1; i < 10; i++ {
		digits[i] = byte('0' + rng.Intn(10))
	}
	return string(digits)
}

func fakeUPI(rng *rand.Rand, name string) string {
	first := strings.ToLower(strings.Fields(name)[0])
	return fmt.Sprintf("%s%d@%s", first, 100+rng.Intn(900), upiHandles[rng.Intn(len(upiHandles))])
}

func fakeAccount(rng *rand.Rand) string {
	digits := make([]byte, 12)
	for i := range digits {
		digits[i] = byte('0' + rng.Intn(10))
	}
	return string(digits)
}

func fakeIFSC(rng *rand.Rand) string {
	return fmt.Sprintf("%s0%06d", bankNames[rng.Intn(len(bankNames))], rng.Intn(1000000))
}

// hash is FNV-1a, matching what the session store uses for striping.
func hash(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
