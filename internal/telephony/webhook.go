package telephony

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shelter-platform/internal/calls"
	"shelter-platform/internal/metrics"
	"shelter-platform/pkg/logger"
)

const maxWebhookBytes = 1 << 20

var ErrInvalidPayload = errors.New("telephony: invalid webhook payload")

type OutcomeStatus string

const (
	OutcomeProcessed OutcomeStatus = "processed"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "error"
)

type SkipReason string

const (
	SkipMissingCallID  SkipReason = "missing_call_id"
	SkipNoMatchingLine SkipReason = "no_matching_line"
)

// WebhookOutcome is what happened to one delivery. It feeds logs and metrics;
// the provider only ever sees Response().
type WebhookOutcome struct {
	Status   OutcomeStatus
	Reason   SkipReason
	TenantID string
	CallID   string
	Err      error
}

// Response is always success-shaped so the provider does not retry a delivery that will keep failing.
func (o WebhookOutcome) Response() gin.H {
	switch o.Status {
	case OutcomeProcessed:
		return gin.H{"received": true, "processed": true}
	case OutcomeSkipped:
		return gin.H{"received": true, "skipped": string(o.Reason)}
	default:
		return gin.H{"received": true, "processed": false, "error": "processing failed"}
	}
}

// Ingestor writes single pushed call events through the same store as the pull sync.
type Ingestor struct {
	Connections ConnectionRepository
	Store       calls.Store
	Now         func() time.Time
}

func NewIngestor(conns ConnectionRepository, store calls.Store) *Ingestor {
	return &Ingestor{Connections: conns, Store: store, Now: time.Now}
}

func (in *Ingestor) Ingest(ctx context.Context, payload calls.Payload) WebhookOutcome {
	now := time.Now
	if in.Now != nil {
		now = in.Now
	}

	rec := calls.Normalize("", unwrapEvent(payload), now())
	if rec.ProviderCallID == "" {
		return WebhookOutcome{Status: OutcomeSkipped, Reason: SkipMissingCallID}
	}
	out := WebhookOutcome{CallID: rec.ProviderCallID}

	target := rec.CalleeNumber
	if target == "" {
		target = rec.CallerNumber
	}

	conns, err := in.Connections.ListActive(ctx)
	if err != nil {
		out.Status, out.Err = OutcomeFailed, err
		return out
	}
	conn, ok := resolveConnection(conns, target)
	if !ok {
		out.Status, out.Reason = OutcomeSkipped, SkipNoMatchingLine
		return out
	}
	out.TenantID = conn.TenantID
	rec.TenantID = conn.TenantID

	if _, err := in.Store.UpsertCalls(ctx, conn.TenantID, []calls.CallRecord{rec}); err != nil {
		out.Status, out.Err = OutcomeFailed, err
		return out
	}
	out.Status = OutcomeProcessed
	return out
}

// resolveConnection returns the first connection, in repository order, owning number.
func resolveConnection(conns []TenantConnection, number string) (TenantConnection, bool) {
	if number == "" {
		return TenantConnection{}, false
	}
	for _, c := range conns {
		if c.IsActive && c.OwnsNumber(number) {
			return c, true
		}
	}
	return TenantConnection{}, false
}

// unwrapEvent accepts the bare call object or an envelope carrying it in data or call.
// An inner object wins when it carries a call id or the body names an event,
// so an envelope's own id is never taken for the call's.
func unwrapEvent(p calls.Payload) calls.Payload {
	_, isEvent := p["event"]
	for _, key := range []string{"data", "call"} {
		inner, ok := p[key].(map[string]any)
		if !ok {
			continue
		}
		if isEvent || hasCallID(inner) {
			return calls.Payload(inner)
		}
	}
	return p
}

func hasCallID(m map[string]any) bool {
	for _, key := range []string{"call_id", "cdr_id", "id"} {
		if _, ok := m[key]; ok {
			return true
		}
	}
	return false
}

// ParseWebhookPayload decodes a JSON object body.
func ParseWebhookPayload(r io.Reader) (calls.Payload, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxWebhookBytes))
	if err != nil {
		return nil, ErrInvalidPayload
	}
	var m map[string]any
	if err := decodeJSON(body, &m); err != nil || m == nil {
		return nil, ErrInvalidPayload
	}
	return calls.Payload(m), nil
}

type WebhookHandler struct {
	Ingestor *Ingestor
}

// Handle answers 400 only for an unreadable body. Every other case is 200.
func (h WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	payload, err := ParseWebhookPayload(c.Request.Body)
	if err != nil {
		log.Warn("telephony webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	out := h.Ingestor.Ingest(c.Request.Context(), payload)
	switch out.Status {
	case OutcomeProcessed:
		metrics.WebhookEvents.WithLabelValues(metrics.OutcomeProcessed, "").Inc()
		log.Info("telephony webhook processed", "tenant_id", out.TenantID, "call_id", out.CallID)
	case OutcomeSkipped:
		metrics.WebhookEvents.WithLabelValues(metrics.OutcomeSkipped, string(out.Reason)).Inc()
		log.Info("telephony webhook skipped", "reason", out.Reason, "call_id", out.CallID)
	default:
		metrics.WebhookEvents.WithLabelValues(metrics.OutcomeError, "").Inc()
		log.Error("telephony webhook failed", "tenant_id", out.TenantID, "call_id", out.CallID, "err", out.Err)
	}
	c.JSON(http.StatusOK, out.Response())
}
