package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{BaseURL: url, Timeout: 5 * time.Second, BreakerFailures: 2, BreakerTimeout: time.Minute}, nil)
}

func TestClient_ListCallsSendsQueryAndKey(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calls" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "key-1" {
			t.Errorf("expected api key in Authorization header")
		}
		q := r.URL.Query()
		if q.Get("start_date") != "2025-03-01T00:00:00Z" || q.Get("end_date") != "2025-03-02T00:00:00Z" {
			t.Errorf("unexpected window %q %q", q.Get("start_date"), q.Get("end_date"))
		}
		if q.Get("limit_count") != "500" || q.Get("limit_offset") != "1000" {
			t.Errorf("unexpected paging %q %q", q.Get("limit_count"), q.Get("limit_offset"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"call_id": 12345678901234567, "direction": "in"}]`))
	}))
	defer srv.Close()

	page, err := newTestClient(srv.URL+"/").ListCalls(context.Background(), "key-1", CallListQuery{From: from, To: to, Limit: 500, Offset: 1000})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(page))
	}
	if got := page[0]["call_id"]; got == nil {
		t.Fatalf("expected call_id")
	}
}

func TestDecodeCallList_Shapes(t *testing.T) {
	cases := map[string]int{
		`[]`:                            0,
		`[{"id":1},{"id":2}]`:           2,
		`{"call_list":[{"id":1}]}`:      1,
		`{"calls":[{"id":1},{"id":2}]}`: 2,
		`{"data":[{"id":1}],"total":1}`: 1,
		`{"message":"no calls"}`:        0,
		`[{"id":1}, "junk", {"id":3}]`:  3,
		`null`:                          0,
	}
	for body, want := range cases {
		got, err := DecodeCallList([]byte(body))
		if err != nil {
			t.Fatalf("%s: %v", body, err)
		}
		if len(got) != want {
			t.Fatalf("%s: expected %d, got %d", body, want, len(got))
		}
	}
	if _, err := DecodeCallList([]byte(`{not json`)); !errors.Is(err, ErrUnexpectedPayload) {
		t.Fatalf("expected ErrUnexpectedPayload, got %v", err)
	}
}

func TestClient_NoContentIsEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	page, err := newTestClient(srv.URL).ListCalls(context.Background(), "k", CallListQuery{Limit: 500})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 0 {
		t.Fatalf("expected empty page")
	}
}

func TestClient_Non2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ListCalls(context.Background(), "k", CallListQuery{Limit: 500})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
}

func TestClient_BreakerIgnoresClientErrors(t *testing.T) {
	status := http.StatusForbidden
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	for i := 0; i < 5; i++ {
		_, err := c.ListCalls(context.Background(), "k", CallListQuery{Limit: 500})
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("attempt %d: expected StatusError, got %v", i, err)
		}
	}

	status = http.StatusBadGateway
	for i := 0; i < 2; i++ {
		_, _ = c.ListCalls(context.Background(), "k", CallListQuery{Limit: 500})
	}
	_, err := c.ListCalls(context.Background(), "k", CallListQuery{Limit: 500})
	var se *StatusError
	if errors.As(err, &se) {
		t.Fatalf("expected open breaker after upstream failures, got %v", err)
	}
}
