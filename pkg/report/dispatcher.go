// Package report delivers the final intelligence report for a terminated
// session to the configured callback endpoint. Delivery is exactly-once per
// session: an atomic claim in the session store gates the send, so replayed
// webhooks and concurrent duplicates produce a single report.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/NectarSec/hivetrap/pkg/config"
	"github.com/NectarSec/hivetrap/pkg/httputil"
	"github.com/NectarSec/hivetrap/pkg/session"
)

// Payload is the report body POSTed to the callback endpoint.
type Payload struct {
	SessionID              string               `json:"sessionId"`
	ScamDetected           bool                 `json:"scamDetected"`
	TotalMessagesExchanged int                  `json:"totalMessagesExchanged"`
	ExtractedIntelligence  session.Intelligence `json:"extractedIntelligence"`
	AgentNotes             string               `json:"agentNotes"`
}

// Dispatcher owns callback delivery. One instance is shared by all sessions;
// the semaphore bounds concurrent outbound sends.
type Dispatcher struct {
	store      session.Store
	url        string
	httpc      *http.Client
	timeout    time.Duration
	maxRetries int
	sem        *httputil.Semaphore
}

// New builds a dispatcher from config. A dispatcher with an empty URL is
// valid and never sends.
func New(store session.Store, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		store:      store,
		url:        cfg.CallbackURL,
		httpc:      httputil.MediumClient(),
		timeout:    cfg.CallbackTimeout,
		maxRetries: cfg.CallbackMaxRetries,
		sem:        httputil.NewSemaphore(cfg.DispatchConcurrency),
	}
}

// Stats exposes the outbound send semaphore for health reporting.
func (d *Dispatcher) Stats() httputil.SemaphoreStats {
	return d.sem.Stats()
}

// MaybeDispatch sends the final report if this session is due one. Called
// with the session lock held; mutates the session (CallbackSent,
// DeliveryFailed, AgentNotes) and leaves persisting to the caller.
//
// The claim is taken before the first send attempt. A crash between claim
// and send loses that report rather than risking a duplicate; the callback
// consumer is an ingestion pipeline, and a duplicate report is worse for it
// than a missing one.
func (d *Dispatcher) MaybeDispatch(ctx context.Context, s *session.Session) {
	if d.url == "" || s.CallbackSent || s.DeliveryFailed {
		return
	}
	// Only confirmed sessions are reportable; suspected-but-unproven ones
	// expire silently.
	if !s.Terminated() || s.Level != session.LevelConfirmed {
		return
	}

	if !d.store.TryClaimCallback(ctx, s.SessionID) {
		// Another worker holds the claim; mirror it locally so this copy of
		// the session stops trying.
		s.CallbackSent = true
		return
	}

	if err := d.sem.Acquire(ctx); err != nil {
		s.DeliveryFailed = true
		s.AgentNotes = appendNote(s.AgentNotes, "report delivery aborted: "+err.Error())
		log.Printf("[CALLBACK] session=%s dispatch aborted before send: %v", s.SessionID, err)
		return
	}
	defer d.sem.Release()

	if err := d.send(ctx, buildPayload(s)); err != nil {
		s.DeliveryFailed = true
		s.AgentNotes = appendNote(s.AgentNotes, "report delivery failed: "+err.Error())
		log.Printf("[CALLBACK] session=%s delivery failed after retries: %v", s.SessionID, err)
		return
	}

	s.CallbackSent = true
	log.Printf("[CALLBACK] session=%s report delivered, reason=%s", s.SessionID, s.TerminationReason)
}

func buildPayload(s *session.Session) Payload {
	return Payload{
		SessionID:              s.SessionID,
		ScamDetected:           s.Level != session.LevelSafe,
		TotalMessagesExchanged: s.TotalMessages,
		ExtractedIntelligence:  s.Intel,
		AgentNotes:             s.AgentNotes,
	}
}

// send posts the payload with exponential backoff. 429 and 5xx responses and
// network errors retry; any other 4xx is permanent.
func (d *Dispatcher) send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return backoff.Permanent(err)
	}

	attempt := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, d.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.httpc.Do(req)
		if err != nil {
			return err
		}
		defer httputil.DrainAndClose(resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("callback: status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("callback: status %d", resp.StatusCode))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	return backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(d.maxRetries)), ctx))
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "; " + note
}
