// Package session defines the per-conversation state that the engine
// mutates and the store persists: the message window, scam level,
// accumulated intelligence, and the callback bookkeeping that backs the
// exactly-once delivery guarantee.
package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Level is the three-tier scam classification for a session.
// Levels only ever move upward within a session (see Session.RaiseLevel).
type Level int

const (
	LevelSafe Level = iota
	LevelSuspected
	LevelConfirmed
)

func (l Level) String() string {
	switch l {
	case LevelConfirmed:
		return "confirmed"
	case LevelSuspected:
		return "suspected"
	default:
		return "safe"
	}
}

// ParseLevel maps a level name to its enum value. Unknown names parse as safe.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confirmed":
		return LevelConfirmed
	case "suspected":
		return LevelSuspected
	default:
		return LevelSafe
	}
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("scam level: %w", err)
	}
	*l = ParseLevel(s)
	return nil
}

// TerminationReason records why a conversation ended.
type TerminationReason string

const (
	TermNone      TerminationReason = ""
	TermMaxTurns  TerminationReason = "max_turns"
	TermExtracted TerminationReason = "extracted_success"
	TermUserQuit  TerminationReason = "user_quit"
)

// Message senders. Everything inbound is attributed to the scammer;
// everything the engine produces is the agent.
const (
	SenderScammer = "scammer"
	SenderAgent   = "agent"
)

// Message is one entry in the conversation log. Immutable once appended.
type Message struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// messageWindow bounds the in-session log so the serialized session stays
// small (design target < 1KB). TotalMessages keeps the untrimmed count for
// the final report.
const messageWindow = 6

// Persona is the decoy identity pinned to a session so the agent stays
// consistent across turns. The Fake* fields are bait handed to the scammer.
type Persona struct {
	Name       string `json:"name,omitempty"`
	Age        int    `json:"age,omitempty"`
	Location   string `json:"location,omitempty"`
	Occupation string `json:"occupation,omitempty"`
	Trait      string `json:"trait,omitempty"`

	FakePhone       string `json:"fakePhone,omitempty"`
	FakeUPI         string `json:"fakeUpi,omitempty"`
	FakeBankAccount string `json:"fakeBankAccount,omitempty"`
	FakeIFSC        string `json:"fakeIfsc,omitempty"`
}

// Session is the unit of conversation state, keyed by the caller-supplied
// session ID. It is mutated exactly once per inbound message, inside the
// store's per-key critical section.
type Session struct {
	SessionID string `json:"sessionId"`

	Messages      []Message `json:"messages"`
	TurnCount     int       `json:"turnCount"`
	TotalMessages int       `json:"totalMessages"`

	ScamConfidence float64 `json:"scamConfidence"`
	Level          Level   `json:"scamLevel"`

	Intel Intelligence `json:"extractedIntelligence"`

	TerminationReason TerminationReason `json:"terminationReason,omitempty"`
	CallbackSent      bool              `json:"callbackSent"`
	DeliveryFailed    bool              `json:"deliveryFailed,omitempty"`
	AgentNotes        string            `json:"agentNotes,omitempty"`

	Persona Persona `json:"persona"`
}

// New returns the default empty session for an unseen session ID.
func New(id string) *Session {
	return &Session{SessionID: id, Level: LevelSafe}
}

// Append adds a message to the log, advancing the total exchange counter and
// trimming the retained window.
func (s *Session) Append(sender, text string, ts time.Time) {
	s.Messages = append(s.Messages, Message{Sender: sender, Text: text, Timestamp: ts})
	s.TotalMessages++
	if len(s.Messages) > messageWindow {
		s.Messages = s.Messages[len(s.Messages)-messageWindow:]
	}
}

// RaiseLevel applies a classification verdict monotonically: the level can
// only go up, and confidence follows the level that produced it. A verdict
// below the session's current level leaves both untouched.
func (s *Session) RaiseLevel(l Level, confidence float64) {
	if l > s.Level {
		s.Level = l
		s.ScamConfidence = confidence
		return
	}
	if l == s.Level && confidence > s.ScamConfidence {
		s.ScamConfidence = confidence
	}
}

// Terminated reports whether the conversation has reached a terminal state.
func (s *Session) Terminated() bool {
	return s.TerminationReason != TermNone
}

// Intelligence is the accumulated extraction result: five independent
// ordered sets of strings. Each set grows monotonically, preserves first-
// appearance order, and suppresses duplicates by normalized exact match.
type Intelligence struct {
	BankAccounts       []string `json:"bankAccounts"`
	UPIIDs             []string `json:"upiIds"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// NormalizeValue is the canonical form used both for storage and duplicate
// comparison: NFKC-normalized, whitespace-trimmed, case-folded.
func NormalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(v)))
}

func appendUnique(dst []string, v string) []string {
	v = NormalizeValue(v)
	if v == "" {
		return dst
	}
	for _, have := range dst {
		if have == v {
			return dst
		}
	}
	return append(dst, v)
}

func (in *Intelligence) AddBankAccount(v string) { in.BankAccounts = appendUnique(in.BankAccounts, v) }
func (in *Intelligence) AddUPIID(v string)       { in.UPIIDs = appendUnique(in.UPIIDs, v) }
func (in *Intelligence) AddPhishingLink(v string) {
	in.PhishingLinks = appendUnique(in.PhishingLinks, v)
}
func (in *Intelligence) AddPhoneNumber(v string) { in.PhoneNumbers = appendUnique(in.PhoneNumbers, v) }
func (in *Intelligence) AddKeyword(v string) {
	in.SuspiciousKeywords = appendUnique(in.SuspiciousKeywords, v)
}

// Merge unions other into a copy of in, field-wise, preserving in's ordering
// and first-appearance order of new values. Merging the same input twice
// yields no growth.
func (in Intelligence) Merge(other Intelligence) Intelligence {
	out := in.Clone()
	for _, v := range other.BankAccounts {
		out.AddBankAccount(v)
	}
	for _, v := range other.UPIIDs {
		out.AddUPIID(v)
	}
	for _, v := range other.PhishingLinks {
		out.AddPhishingLink(v)
	}
	for _, v := range other.PhoneNumbers {
		out.AddPhoneNumber(v)
	}
	for _, v := range other.SuspiciousKeywords {
		out.AddKeyword(v)
	}
	return out
}

// Clone returns a deep copy.
func (in Intelligence) Clone() Intelligence {
	cp := func(s []string) []string {
		if len(s) == 0 {
			return nil
		}
		out := make([]string, len(s))
		copy(out, s)
		return out
	}
	return Intelligence{
		BankAccounts:       cp(in.BankAccounts),
		UPIIDs:             cp(in.UPIIDs),
		PhishingLinks:      cp(in.PhishingLinks),
		PhoneNumbers:       cp(in.PhoneNumbers),
		SuspiciousKeywords: cp(in.SuspiciousKeywords),
	}
}

// HardFieldCount returns how many non-keyword fields have at least one
// value. This is the "high-value" signal used for extraction sufficiency and
// the extracted_success termination threshold.
func (in Intelligence) HardFieldCount() int {
	n := 0
	for _, set := range [][]string{in.BankAccounts, in.UPIIDs, in.PhishingLinks, in.PhoneNumbers} {
		if len(set) > 0 {
			n++
		}
	}
	return n
}

// Equal reports field-wise equality including ordering. Used by tests to
// assert merge idempotence.
func (in Intelligence) Equal(other Intelligence) bool {
	eq := func(a, b []string) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
	return eq(in.BankAccounts, other.BankAccounts) &&
		eq(in.UPIIDs, other.UPIIDs) &&
		eq(in.PhishingLinks, other.PhishingLinks) &&
		eq(in.PhoneNumbers, other.PhoneNumbers) &&
		eq(in.SuspiciousKeywords, other.SuspiciousKeywords)
}
