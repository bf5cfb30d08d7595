package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"shelter-platform/internal/calls"
)

func newIngestor(conns ...TenantConnection) (*Ingestor, *calls.MemoryStore) {
	store := calls.NewMemoryStore()
	return NewIngestor(NewMemoryConnections(conns...), store), store
}

func shelterLine() TenantConnection {
	return TenantConnection{ID: "c1", TenantID: "t1", APIKey: "k", IsActive: true, ReceptionNumber: "0612345678", OnCallNumber: "0699887766"}
}

func TestIngest_DuplicateDeliveryKeepsOneRow(t *testing.T) {
	in, store := newIngestor(shelterLine())
	ctx := context.Background()
	event := calls.Payload{"call_id": "abc", "direction": "in", "status": "missed", "to_number": "0612345678"}

	for i := 0; i < 2; i++ {
		out := in.Ingest(ctx, event)
		if out.Status != OutcomeProcessed || out.TenantID != "t1" {
			t.Fatalf("delivery %d: unexpected outcome %+v", i, out)
		}
	}
	if store.Len() != 1 {
		t.Fatalf("expected one stored record, got %d", store.Len())
	}
	rec, err := store.GetCall(ctx, "t1", "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.CallbackNeeded {
		t.Fatalf("expected callback needed")
	}
}

func TestIngest_MissingCallIDIsSkipped(t *testing.T) {
	in, store := newIngestor(shelterLine())
	out := in.Ingest(context.Background(), calls.Payload{"to_number": "0612345678"})
	if out.Status != OutcomeSkipped || out.Reason != SkipMissingCallID {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if store.Len() != 0 {
		t.Fatalf("expected nothing stored")
	}
}

func TestIngest_UnknownLineIsSkipped(t *testing.T) {
	in, _ := newIngestor(shelterLine())
	out := in.Ingest(context.Background(), calls.Payload{"call_id": "x", "to_number": "0711111111", "from_number": "0722222222"})
	if out.Status != OutcomeSkipped || out.Reason != SkipNoMatchingLine {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestIngest_FallsBackToFromNumberAndOnCallLine(t *testing.T) {
	in, store := newIngestor(shelterLine())
	out := in.Ingest(context.Background(), calls.Payload{"call_id": "x", "direction": "out", "from_number": "+33699887766"})
	if out.Status != OutcomeProcessed {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if _, err := store.GetCall(context.Background(), "t1", "x"); err != nil {
		t.Fatalf("expected stored record: %v", err)
	}
}

func TestIngest_FromNumberOnlyWhenToNumberAbsent(t *testing.T) {
	in, store := newIngestor(shelterLine())
	out := in.Ingest(context.Background(), calls.Payload{"call_id": "y", "to_number": "0711111111", "from_number": "0612345678"})
	if out.Status != OutcomeSkipped || out.Reason != SkipNoMatchingLine {
		t.Fatalf("expected skip on unmatched to-number, got %+v", out)
	}
	if store.Len() != 0 {
		t.Fatalf("expected nothing stored")
	}
}

func TestIngest_IgnoresInactiveAndPicksFirstMatch(t *testing.T) {
	inactive := TenantConnection{ID: "c0", TenantID: "t0", APIKey: "k", IsActive: false, ReceptionNumber: "0612345678"}
	second := TenantConnection{ID: "c2", TenantID: "t2", APIKey: "k", IsActive: true, ReceptionNumber: "+33612345678"}
	in, _ := newIngestor(inactive, shelterLine(), second)

	out := in.Ingest(context.Background(), calls.Payload{"call_id": "x", "to_number": "0612345678"})
	if out.TenantID != "t1" {
		t.Fatalf("expected first active match t1, got %q", out.TenantID)
	}
}

func TestIngest_UnwrapsEnvelope(t *testing.T) {
	in, store := newIngestor(shelterLine())
	out := in.Ingest(context.Background(), calls.Payload{
		"event": "call.ended",
		"data":  map[string]any{"cdr_id": "e1", "type": "inbound", "status": "answered", "callee_number": "0612345678"},
	})
	if out.Status != OutcomeProcessed {
		t.Fatalf("unexpected outcome %+v", out)
	}
	rec, _ := store.GetCall(context.Background(), "t1", "e1")
	if rec.Status != calls.CallStatusAnswered {
		t.Fatalf("unexpected status %q", rec.Status)
	}
}

func TestIngest_EnvelopeIDIsNotTheCallID(t *testing.T) {
	in, store := newIngestor(shelterLine())
	out := in.Ingest(context.Background(), calls.Payload{
		"id":    "evt_9",
		"event": "call.ended",
		"data":  map[string]any{"call_id": "abc", "direction": "in", "status": "missed", "to_number": "0612345678"},
	})
	if out.Status != OutcomeProcessed || out.CallID != "abc" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if _, err := store.GetCall(context.Background(), "t1", "evt_9"); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected no record under the event id, got %v", err)
	}

	// Without an event key, an inner call object carrying its own id still wins.
	out = in.Ingest(context.Background(), calls.Payload{
		"id":   "delivery-2",
		"call": map[string]any{"call_id": "def", "to_number": "0612345678"},
	})
	if out.Status != OutcomeProcessed || out.CallID != "def" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if store.Len() != 2 {
		t.Fatalf("expected two stored records, got %d", store.Len())
	}
}

type failingStore struct{ calls.Store }

func (failingStore) UpsertCalls(ctx context.Context, tenantID string, records []calls.CallRecord) (int, error) {
	return 0, errors.New("db down")
}

func TestWebhookOutcome_ResponseIsAlwaysSuccessShaped(t *testing.T) {
	outcomes := []WebhookOutcome{
		{Status: OutcomeProcessed},
		{Status: OutcomeSkipped, Reason: SkipNoMatchingLine},
		{Status: OutcomeFailed, Err: errors.New("boom")},
	}
	for _, o := range outcomes {
		if o.Response()["received"] != true {
			t.Fatalf("expected received=true for %s", o.Status)
		}
	}
	if _, leaked := (WebhookOutcome{Status: OutcomeFailed, Err: errors.New("secret detail")}).Response()["err"]; leaked {
		t.Fatalf("internal error must not be on the wire")
	}
}

func runWebhook(t *testing.T, h WebhookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/telephony", h.Handle)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telephony", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_StatusCodes(t *testing.T) {
	in, _ := newIngestor(shelterLine())
	h := WebhookHandler{Ingestor: in}

	if w := runWebhook(t, h, `{not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unparsable body, got %d", w.Code)
	}
	if w := runWebhook(t, h, `[1,2]`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-object body, got %d", w.Code)
	}

	w := runWebhook(t, h, `{"to_number":"0612345678"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["skipped"] != "missing_call_id" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	w = runWebhook(t, h, `{"call_id":"abc","to_number":"0612345678"}`)
	body = map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusOK || body["processed"] != true {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestWebhookHandler_StoreFailureStill200(t *testing.T) {
	in := NewIngestor(NewMemoryConnections(shelterLine()), failingStore{})
	w := runWebhook(t, WebhookHandler{Ingestor: in}, `{"call_id":"abc","to_number":"0612345678"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on internal failure, got %d", w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["received"] != true || body["error"] == nil {
		t.Fatalf("expected error-shaped success body, got %s", w.Body.String())
	}
}
