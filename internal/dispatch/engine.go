// Package dispatch drives the sending of pending draft entries against a
// mail transport: one entry in flight at a time, fixed spacing between
// sends, cooperative cancellation, and an append-only outcome stream.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"RosterMail/internal/compose"
	"RosterMail/internal/ledger"
	"RosterMail/internal/metrics"
	"RosterMail/internal/models"
	"RosterMail/internal/transport"
)

// ValidationError rejects a dispatch request before any transport call. It is
// the only error class that escapes the engine once a batch is under way.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Outcome is the recorded result of one attempted send.
type Outcome struct {
	RecipientID string `json:"recipient_id"`
	To          string `json:"to"`
	OK          bool   `json:"ok"`
	Err         string `json:"error,omitempty"`
}

// Progress is emitted after every resolved entry. Outcomes accumulate in
// attempt order and are never reordered or removed.
type Progress struct {
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Summary closes a batch run.
type Summary struct {
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Cancelled bool      `json:"cancelled"`
	Outcomes  []Outcome `json:"outcomes"`
}

type Engine struct {
	ledger    ledger.Ledger
	transport transport.Transport
	tokens    transport.TokenProvider
	log       *zap.Logger

	// TrackingBase empty disables the beacon entirely.
	TrackingBase string
	DatasetID    string
	Interval     time.Duration
	FixedCc      string
}

func New(l ledger.Ledger, t transport.Transport, tokens transport.TokenProvider, log *zap.Logger) *Engine {
	return &Engine{
		ledger:    l,
		transport: t,
		tokens:    tokens,
		log:       log,
		Interval:  400 * time.Millisecond,
	}
}

// CcList derives the CC addresses for an entry: the recipient's manager when
// requested (primary mode only), the fixed institutional address, then any
// free-text extra.
func (e *Engine) CcList(entry *models.DraftEntry) []string {
	var cc []string
	if entry.CcBoss && entry.Mode == models.ModePrimary && entry.Recipient.BossEmail != "" {
		cc = append(cc, entry.Recipient.BossEmail)
	}
	if entry.CcFixed && e.FixedCc != "" {
		cc = append(cc, e.FixedCc)
	}
	if entry.AdditionalCc != "" {
		cc = append(cc, entry.AdditionalCc)
	}
	return cc
}

func (e *Engine) ensureCredential(ctx context.Context) error {
	if e.tokens.HasValidCredential() {
		return nil
	}
	return e.tokens.Reauthorize(ctx)
}

// SendOne dispatches a single entry. Validation and credential problems come
// back as errors before any transport call; a transport failure is returned
// as a failed Outcome, never as an error.
func (e *Engine) SendOne(ctx context.Context, campaignID string, entry *models.DraftEntry, shared []models.Attachment) (Outcome, error) {
	if campaignID == "" {
		return Outcome{}, &ValidationError{Msg: "selecciona una campaña primero"}
	}
	if err := e.ensureCredential(ctx); err != nil {
		return Outcome{}, err
	}
	return e.dispatch(ctx, campaignID, entry, shared), nil
}

// dispatch resolves one entry to a terminal state and records the outcome.
func (e *Engine) dispatch(ctx context.Context, campaignID string, entry *models.DraftEntry, shared []models.Attachment) Outcome {
	to := entry.Destination()
	out := Outcome{RecipientID: entry.RecipientID, To: to}

	// The log id is minted before the send so the beacon URL and the ledger
	// row share it; it cannot be regenerated afterwards.
	logID := uuid.NewString()
	beacon := compose.BeaconHTML(compose.BeaconURL(e.TrackingBase, logID, campaignID, e.DatasetID, time.Now()))

	payload, err := compose.BuildPayload(compose.Input{
		To:       to,
		Cc:       e.CcList(entry),
		Subject:  entry.Subject,
		BodyHTML: entry.Body,
		Shared:   shared,
		Personal: entry.Attachments,
		Beacon:   beacon,
	})
	if err != nil {
		e.log.Error("compose failed",
			zap.String("recipient_id", entry.RecipientID),
			zap.Error(err),
		)
		entry.State = models.StateFailed
		metrics.EmailFailures.Inc()
		out.Err = "no se pudo generar el mensaje"
		return out
	}

	entry.State = models.StateSending
	if err := e.transport.Send(ctx, payload); err != nil {
		if transport.IsAuthExpired(err) {
			e.tokens.Invalidate()
		}
		e.log.Error("email send failed",
			zap.String("to", to),
			zap.Error(err),
		)
		entry.State = models.StateFailed
		metrics.EmailFailures.Inc()
		out.Err = err.Error()
		return out
	}

	e.appendLog(ctx, campaignID, entry, to, logID, e.transport.Method())
	entry.Sent = true
	entry.State = models.StateSent
	metrics.EmailsSent.Inc()
	out.OK = true

	e.log.Info("email sent",
		zap.String("to", to),
		zap.String("campaign_id", campaignID),
		zap.String("log_id", logID),
	)
	return out
}

func (e *Engine) appendLog(ctx context.Context, campaignID string, entry *models.DraftEntry, to, logID string, method models.SendMethod) {
	log := models.EmailLog{
		RecipientID:    entry.RecipientID,
		RecipientEmail: to,
		SentAt:         time.Now(),
		Method:         method,
		DatasetID:      e.DatasetID,
	}
	if err := e.ledger.AppendLog(ctx, campaignID, log, logID); err != nil {
		// The message is already out; losing the log row is an audit gap,
		// not a send failure.
		e.log.Error("email log append failed",
			zap.String("log_id", logID),
			zap.Error(err),
		)
	}
}

// SendAll runs the bulk loop over the pending entries: not yet sent and with
// a resolvable destination. Strictly sequential; the spacing limiter admits
// the first send immediately and each later one after the configured
// interval. Cancellation is observed between entries only; the in-flight
// send always resolves.
func (e *Engine) SendAll(ctx context.Context, campaignID string, entries *models.EntryList, shared []models.Attachment, onProgress func(Progress)) (*Summary, error) {
	if campaignID == "" {
		return nil, &ValidationError{Msg: "selecciona una campaña primero"}
	}
	pending := entries.Pending()
	if len(pending) == 0 {
		return nil, &ValidationError{Msg: "no hay correos pendientes para enviar"}
	}
	for _, entry := range pending {
		if strings.TrimSpace(entry.Body) == "" {
			return nil, &ValidationError{Msg: "hay correos con el cuerpo vacío: " + entry.Recipient.Name}
		}
	}
	if err := e.ensureCredential(ctx); err != nil {
		if errors.Is(err, transport.ErrReauthorizeCancelled) {
			return nil, err
		}
		return nil, fmt.Errorf("no se pudo autorizar el envío: %w", err)
	}

	metrics.BatchesRun.Inc()
	limiter := rate.NewLimiter(rate.Every(e.Interval), 1)
	summary := &Summary{}

	for _, entry := range pending {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			summary.Cancelled = true
			break
		}

		out := e.dispatch(ctx, campaignID, entry, shared)
		summary.Outcomes = append(summary.Outcomes, out)
		if out.OK {
			summary.Sent++
		} else {
			summary.Failed++
		}

		if onProgress != nil {
			onProgress(Progress{
				Completed: len(summary.Outcomes),
				Total:     len(pending),
				Outcomes:  append([]Outcome(nil), summary.Outcomes...),
			})
		}
	}

	e.log.Info("bulk send finished",
		zap.String("campaign_id", campaignID),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Bool("cancelled", summary.Cancelled),
	)
	return summary, nil
}

// ExportEML builds the portable draft file for one entry and logs the send
// under the file method. The file itself is returned, not persisted.
func (e *Engine) ExportEML(ctx context.Context, campaignID string, entry *models.DraftEntry, shared []models.Attachment) (filename string, data []byte, err error) {
	if campaignID == "" {
		return "", nil, &ValidationError{Msg: "selecciona una campaña primero"}
	}
	data, err = compose.BuildEML(compose.Input{
		To:       entry.Destination(),
		Cc:       e.CcList(entry),
		Subject:  entry.Subject,
		BodyHTML: entry.Body,
		Shared:   shared,
		Personal: entry.Attachments,
	})
	if err != nil {
		return "", nil, fmt.Errorf("no se pudo generar el archivo .eml: %w", err)
	}

	e.appendLog(ctx, campaignID, entry, entry.Destination(), uuid.NewString(), models.MethodEML)
	entry.Sent = true
	entry.State = models.StateSent
	metrics.EmailsSent.Inc()

	return compose.EMLFilename(entry.Subject), data, nil
}
