// Package classify scores inbound messages into the three-tier scam level.
// The primary engine is a deterministic rule set: lexicon membership plus a
// pair of structural patterns (payment identifier, link). An optional LLM
// signal is consulted only when no rule fired, and can never lower a level
// the session has already reached.
package classify

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/NectarSec/hivetrap/pkg/config"
	"github.com/NectarSec/hivetrap/pkg/session"
)

// Fixed per-tier confidences keep verdicts reproducible; these are scores
// for matched rule tiers, not model outputs.
const (
	ConfidenceConfirmed = 0.9
	ConfidenceSuspected = 0.6
	ConfidenceSafe      = 0.1
)

// Confidences for LLM-derived verdicts, lower than the rule tiers since the
// signal is only consulted on ambiguity.
const (
	llmConfidenceConfirmed = 0.8
	llmConfidenceSuspected = 0.5
	llmConfidenceSafe      = 0.2
)

// Structural confirmed-intent patterns: a UPI-shaped payment identifier or a
// URL in the message confirms intent regardless of vocabulary.
var (
	reUPIToken = regexp.MustCompile(`\b[a-zA-Z0-9._-]+@[a-zA-Z]{2,}\b`)
	reLink     = regexp.MustCompile(`https?://\S+|\bwww\.\S+`)
)

// emailDomains are excluded from the UPI-shaped token rule; an email address
// in a message is not payment intent.
var emailDomains = map[string]bool{
	"gmail": true, "yahoo": true, "hotmail": true, "outlook": true,
	"email": true, "mail": true, "proton": true,
}

// Verdict is the outcome of classifying one message.
type Verdict struct {
	Level      session.Level
	Confidence float64
	Keywords   []string // lexicon hits from either tier, in match order
}

// Classifier evaluates messages against the configured lexicons.
// Classify is deterministic and side-effect-free; the optional LLM signal is
// the only part that touches the network.
type Classifier struct {
	confirmed []string
	suspected []string
	llm       Signal
}

// Signal is the optional secondary scoring source consulted when no rule
// fired. Implementations must coerce their output into the three-level enum.
type Signal interface {
	Assess(ctx context.Context, text string, history []session.Message) (session.Level, error)
}

// New builds a classifier from the configured lexicons. signal may be nil.
func New(cfg *config.Config, signal Signal) *Classifier {
	return &Classifier{
		confirmed: lowerAll(cfg.ConfirmedKeywords),
		suspected: lowerAll(cfg.SuspectedKeywords),
		llm:       signal,
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Classify scores one inbound message. The result is combined with current
// via max, so a session's level never goes down. history is provided for
// the ambiguity signal only; the rule evaluation itself is per-message.
func (c *Classifier) Classify(ctx context.Context, text string, history []session.Message, current session.Level) Verdict {
	lower := strings.ToLower(text)

	keywords := c.matchedKeywords(lower)
	level, confidence := c.ruleLevel(text, lower)

	// No rule fired: the optional secondary signal may weigh in. Confirmed
	// evidence already observed in the session keeps precedence via the
	// max-combine below.
	if level == session.LevelSafe && len(keywords) == 0 && c.llm != nil {
		if got, err := c.llm.Assess(ctx, text, history); err == nil {
			level = got
			switch got {
			case session.LevelConfirmed:
				confidence = llmConfidenceConfirmed
			case session.LevelSuspected:
				confidence = llmConfidenceSuspected
			default:
				confidence = llmConfidenceSafe
			}
		} else {
			log.Printf("[CLASSIFY] secondary signal unavailable, rule verdict stands: %v", err)
		}
	}

	if current > level {
		level = current
		// Confidence for an inherited level is whatever the session already
		// carries; the engine keeps the higher of the two.
	}

	return Verdict{Level: level, Confidence: confidence, Keywords: keywords}
}

// ruleLevel applies the two rule tiers, confirmed first.
func (c *Classifier) ruleLevel(text, lower string) (session.Level, float64) {
	if c.hasConfirmedRule(text, lower) {
		return session.LevelConfirmed, ConfidenceConfirmed
	}
	if containsAny(lower, c.suspected) {
		return session.LevelSuspected, ConfidenceSuspected
	}
	return session.LevelSafe, ConfidenceSafe
}

func (c *Classifier) hasConfirmedRule(text, lower string) bool {
	if containsAny(lower, c.confirmed) {
		return true
	}
	if reLink.MatchString(text) {
		return true
	}
	for _, tok := range reUPIToken.FindAllString(text, -1) {
		if !emailDomains[strings.ToLower(handleOf(tok))] {
			return true
		}
	}
	return false
}

// matchedKeywords collects lexicon hits from both tiers, confirmed first.
func (c *Classifier) matchedKeywords(lower string) []string {
	var out []string
	for _, kw := range c.confirmed {
		if config.MatchKeyword(lower, kw) {
			out = append(out, kw)
		}
	}
	for _, kw := range c.suspected {
		if config.MatchKeyword(lower, kw) {
			out = append(out, kw)
		}
	}
	return out
}

func containsAny(lower string, needles []string) bool {
	for _, n := range needles {
		if config.MatchKeyword(lower, n) {
			return true
		}
	}
	return false
}

func handleOf(upi string) string {
	if i := strings.LastIndex(upi, "@"); i >= 0 {
		return upi[i+1:]
	}
	return ""
}
