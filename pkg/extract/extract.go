// Package extract pulls actionable intelligence out of scammer messages:
// bank accounts, UPI IDs, phishing links, phone numbers, and lexicon
// keywords. The primary pass is pure pattern matching; an optional LLM pass
// runs only when the primary pass found nothing high-value, and its
// candidates are accepted only if they independently satisfy the same
// pattern constraints.
package extract

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/NectarSec/hivetrap/pkg/config"
	"github.com/NectarSec/hivetrap/pkg/session"
)

// Pattern tables, compiled once at package init.
var (
	// UPI identifier: local@handle. Handle is alphabetic; common email
	// domains are filtered out below.
	reUPI = regexp.MustCompile(`\b[a-zA-Z0-9._-]+@[a-zA-Z]{2,}\b`)

	// Indian mobile number: optional +91, leading digit 6-9, ten digits.
	// Bounded on both sides so the tail of a longer digit run (an account
	// number) never reads as a phone.
	rePhone = regexp.MustCompile(`\+91[\s-]?[6-9]\d{9}\b|\b[6-9]\d{9}\b`)

	// URL-shaped token, trailing punctuation trimmed after match.
	reLink = regexp.MustCompile(`https?://[^\s<>"']+|\bwww\.[^\s<>"']+`)

	// Bank account candidate: 9-18 digit run. Context filtering below keeps
	// phone numbers and random digit runs out.
	reAccount = regexp.MustCompile(`\b\d{9,18}\b`)

	reStrip = regexp.MustCompile(`[\s-]`)
)

// emailDomains never count as UPI handles.
var emailDomains = map[string]bool{
	"gmail": true, "yahoo": true, "hotmail": true, "outlook": true,
	"email": true, "mail": true, "proton": true,
}

// accountContextWords must appear somewhere in the message for a digit run
// to be read as a bank account.
var accountContextWords = []string{
	"account", "a/c", "ac ", "acc ", "transfer", "send", "credit", "debit", "deposit",
}

// Extractor merges per-message findings into accumulated intelligence.
type Extractor struct {
	keywords  []string
	secondary Secondary
}

// Secondary is the optional model-backed pass. Candidates it returns are
// re-validated against the primary patterns before merging.
type Secondary interface {
	Propose(ctx context.Context, text string) (session.Intelligence, error)
}

// New builds an extractor. The keyword lexicon is the union of both
// classification tiers; secondary may be nil.
func New(cfg *config.Config, secondary Secondary) *Extractor {
	kws := make([]string, 0, len(cfg.ConfirmedKeywords)+len(cfg.SuspectedKeywords))
	for _, kw := range cfg.ConfirmedKeywords {
		kws = append(kws, strings.ToLower(kw))
	}
	for _, kw := range cfg.SuspectedKeywords {
		kws = append(kws, strings.ToLower(kw))
	}
	return &Extractor{keywords: kws, secondary: secondary}
}

// Extract runs the primary pass on one message and merges into existing.
// Idempotent: extracting the same message twice yields no set growth. The
// secondary pass is consulted only when the primary pass surfaced zero
// high-value (non-keyword) values for this message.
func (e *Extractor) Extract(ctx context.Context, text string, existing session.Intelligence) session.Intelligence {
	primary := e.primaryPass(text)
	merged := existing.Merge(primary)

	if e.secondary != nil && primary.HardFieldCount() == 0 {
		proposed, err := e.secondary.Propose(ctx, text)
		if err != nil {
			log.Printf("[EXTRACT] secondary pass unavailable: %v", err)
			return merged
		}
		merged = merged.Merge(e.validate(proposed))
	}

	return merged
}

// primaryPass applies the pattern tables to one message.
func (e *Extractor) primaryPass(text string) session.Intelligence {
	var out session.Intelligence
	lower := strings.ToLower(text)

	for _, tok := range reUPI.FindAllString(text, -1) {
		if ValidUPI(tok) {
			out.AddUPIID(tok)
		}
	}

	phones := map[string]bool{}
	for _, tok := range rePhone.FindAllString(text, -1) {
		if p, ok := NormalizePhone(tok); ok {
			out.AddPhoneNumber(p)
			phones[p] = true
		}
	}

	for _, tok := range reLink.FindAllString(text, -1) {
		out.AddPhishingLink(strings.TrimRight(tok, ".,;:!?)"))
	}

	if hasAccountContext(lower) {
		for _, tok := range reAccount.FindAllString(text, -1) {
			// A ten-digit run that parses as a phone stays a phone.
			if phones[tok] {
				continue
			}
			if len(tok) == 10 && tok[0] >= '6' && tok[0] <= '9' {
				continue
			}
			out.AddBankAccount(tok)
		}
	}

	for _, kw := range e.keywords {
		if config.MatchKeyword(lower, kw) {
			out.AddKeyword(kw)
		}
	}

	return out
}

// validate re-applies the primary pattern constraints to secondary-pass
// candidates. A candidate failing format validation is discarded, never
// surfaced; the model cannot fabricate values past this gate.
func (e *Extractor) validate(in session.Intelligence) session.Intelligence {
	var out session.Intelligence
	for _, v := range in.UPIIDs {
		if reUPI.MatchString(v) && ValidUPI(v) {
			out.AddUPIID(v)
		}
	}
	for _, v := range in.PhoneNumbers {
		if p, ok := NormalizePhone(v); ok {
			out.AddPhoneNumber(p)
		}
	}
	for _, v := range in.PhishingLinks {
		if reLink.MatchString(v) {
			out.AddPhishingLink(v)
		}
	}
	for _, v := range in.BankAccounts {
		if reAccount.MatchString(v) && len(v) >= 9 && len(v) <= 18 {
			out.AddBankAccount(v)
		}
	}
	// Secondary keywords are ignored: keyword membership is defined by the
	// lexicon, not by the model.
	return out
}

// ValidUPI reports whether a UPI-shaped token has a non-email handle.
func ValidUPI(tok string) bool {
	i := strings.LastIndex(tok, "@")
	if i <= 0 || i == len(tok)-1 {
		return false
	}
	return !emailDomains[strings.ToLower(tok[i+1:])]
}

// NormalizePhone strips +91 and separators and keeps bare ten-digit Indian
// mobile numbers (leading digit 6-9).
func NormalizePhone(tok string) (string, bool) {
	clean := reStrip.ReplaceAllString(tok, "")
	clean = strings.TrimPrefix(clean, "+91")
	if len(clean) != 10 {
		return "", false
	}
	for _, r := range clean {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	if clean[0] < '6' || clean[0] > '9' {
		return "", false
	}
	return clean, true
}

func hasAccountContext(lower string) bool {
	for _, w := range accountContextWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
