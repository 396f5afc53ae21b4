// Package engine orchestrates one webhook turn: load session, classify,
// extract, generate the persona reply, evaluate termination, and dispatch the
// final report. HandleMessage never fails the caller; every degradation path
// ends in a usable reply.
package engine

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/NectarSec/hivetrap/pkg/classify"
	"github.com/NectarSec/hivetrap/pkg/config"
	"github.com/NectarSec/hivetrap/pkg/extract"
	"github.com/NectarSec/hivetrap/pkg/persona"
	"github.com/NectarSec/hivetrap/pkg/report"
	"github.com/NectarSec/hivetrap/pkg/session"
)

// closingReply goes out on messages that arrive after the conversation
// already terminated. No state advances for those.
const closingReply = "Beta, I have to go now, my neighbour is calling me. We will talk later."

// Inbound is one scammer message as received by the webhook.
type Inbound struct {
	SessionID string
	Text      string
	Timestamp time.Time
}

// Result is what the webhook reports back for one turn.
type Result struct {
	Reply      string
	Level      session.Level
	Terminated bool
	Reason     session.TerminationReason
}

// Engine wires the per-turn pipeline together. One instance serves all
// sessions; per-session serialization comes from the store's key locks.
type Engine struct {
	cfg        *config.Config
	store      session.Store
	classifier *classify.Classifier
	extractor  *extract.Extractor
	responder  persona.Responder
	dispatcher *report.Dispatcher

	quitPhrases []string
}

// New builds the engine. responder must be non-nil; dispatcher may be a
// no-send dispatcher when no callback URL is configured.
func New(cfg *config.Config, store session.Store, cl *classify.Classifier, ex *extract.Extractor, r persona.Responder, d *report.Dispatcher) *Engine {
	quits := make([]string, 0, len(cfg.QuitPhrases))
	for _, q := range cfg.QuitPhrases {
		q = strings.ToLower(strings.TrimSpace(q))
		if q != "" {
			quits = append(quits, q)
		}
	}
	return &Engine{
		cfg:         cfg,
		store:       store,
		classifier:  cl,
		extractor:   ex,
		responder:   r,
		dispatcher:  d,
		quitPhrases: quits,
	}
}

// HandleMessage processes one inbound message end to end. The whole turn is
// bounded by the request budget; inner stages degrade individually so the
// reply always goes out.
func (e *Engine) HandleMessage(ctx context.Context, in Inbound) Result {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestBudget)
	defer cancel()

	e.store.Lock(in.SessionID)
	defer e.store.Unlock(in.SessionID)

	s := e.store.Load(ctx, in.SessionID)

	if s.Terminated() {
		// Replayed or late message for a finished conversation. The dispatch
		// check is repeated so a report that terminated during an outage still
		// gets its one delivery attempt path re-evaluated.
		e.dispatcher.MaybeDispatch(ctx, s)
		e.save(ctx, s)
		return Result{Reply: closingReply, Level: s.Level, Terminated: true, Reason: s.TerminationReason}
	}

	persona.EnsurePersona(s)
	s.TurnCount++
	s.Append(session.SenderScammer, in.Text, in.Timestamp)

	verdict := e.classifier.Classify(ctx, in.Text, s.Messages, s.Level)
	s.RaiseLevel(verdict.Level, verdict.Confidence)
	for _, kw := range verdict.Keywords {
		s.Intel.AddKeyword(kw)
	}

	// First-contact safe messages skip extraction; everything after turn one
	// is scanned regardless of level, since scammers front-load pleasantries.
	if s.Level != session.LevelSafe || s.TurnCount > 1 {
		s.Intel = e.extractor.Extract(ctx, in.Text, s.Intel)
	}

	reply := e.respond(ctx, s, in.Text)

	e.evaluateTermination(s, in.Text)
	if s.Terminated() {
		e.dispatcher.MaybeDispatch(ctx, s)
	}

	s.Append(session.SenderAgent, reply, time.Now().UTC())
	e.save(ctx, s)

	return Result{Reply: reply, Level: s.Level, Terminated: s.Terminated(), Reason: s.TerminationReason}
}

// respond generates the persona reply within its own timeout. Any failure
// falls back to the canned reply; the turn still counts.
func (e *Engine) respond(ctx context.Context, s *session.Session, inbound string) string {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.ResponderTimeout)
	defer cancel()

	reply, err := e.responder.Respond(rctx, s, inbound)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			log.Printf("[ENGINE] session=%s responder failed, using fallback reply: %v", s.SessionID, err)
		}
		return persona.FallbackReply
	}
	return reply
}

// evaluateTermination checks the terminal conditions in priority order:
// extracted_success, then user_quit, then max_turns. The first reason to fire
// sticks for the life of the session.
func (e *Engine) evaluateTermination(s *session.Session, inbound string) {
	if s.Terminated() {
		return
	}

	if s.Level == session.LevelConfirmed && s.Intel.HardFieldCount() >= e.cfg.MinHardFields {
		s.TerminationReason = session.TermExtracted
		return
	}

	if s.Level != session.LevelSafe && e.isQuit(inbound) {
		s.TerminationReason = session.TermUserQuit
		return
	}

	if s.TurnCount >= e.cfg.MaxTurns {
		s.TerminationReason = session.TermMaxTurns
	}
}

func (e *Engine) isQuit(text string) bool {
	lower := strings.ToLower(text)
	for _, q := range e.quitPhrases {
		if strings.Contains(lower, q) {
			return true
		}
	}
	return false
}

func (e *Engine) save(ctx context.Context, s *session.Session) {
	if err := e.store.Save(ctx, s.SessionID, s); err != nil {
		log.Printf("[ENGINE] session=%s save failed: %v", s.SessionID, err)
	}
}
