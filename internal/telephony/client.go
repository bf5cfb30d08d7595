package telephony

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"shelter-platform/internal/calls"
	"shelter-platform/internal/config"
	"shelter-platform/internal/metrics"
)

// maxPageBytes bounds one call-list response body.
const maxPageBytes = 32 << 20

var ErrUnexpectedPayload = errors.New("telephony: unexpected call list payload")

// StatusError is returned for any non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("telephony: provider returned %d", e.StatusCode)
	}
	return fmt.Sprintf("telephony: provider returned %d: %s", e.StatusCode, e.Body)
}

// CallListQuery selects one page of call history in [From, To].
type CallListQuery struct {
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

type ClientConfig struct {
	BaseURL string
	Timeout time.Duration

	BreakerFailures uint32
	BreakerInterval time.Duration
	BreakerTimeout  time.Duration
}

func ClientConfigFrom(c config.TelephonyConfig) ClientConfig {
	return ClientConfig{
		BaseURL:         c.BaseURL,
		Timeout:         c.Timeout,
		BreakerFailures: c.BreakerFailures,
		BreakerInterval: c.BreakerInterval,
		BreakerTimeout:  c.BreakerTimeout,
	}
}

// Client talks to the provider's call history API.
// It never retries; a failed page is reported to the caller as is.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]calls.Payload]
}

func NewClient(cfg ClientConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[[]calls.Payload](breakerSettings(cfg, log)),
	}
}

func breakerSettings(cfg ClientConfig, log *slog.Logger) gobreaker.Settings {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.Settings{
		Name:     "telephony-provider",
		Interval: cfg.BreakerInterval,
		Timeout:  cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Client errors are tenant problems (bad key, bad query), not provider outages.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500
			}
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit state changed",
				"service", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
}

// ListCalls fetches one page. A 204 or an empty list is an empty page.
func (c *Client) ListCalls(ctx context.Context, apiKey string, q CallListQuery) ([]calls.Payload, error) {
	return c.breaker.Execute(func() ([]calls.Payload, error) {
		return c.listCalls(ctx, apiKey, q)
	})
}

func (c *Client) listCalls(ctx context.Context, apiKey string, q CallListQuery) ([]calls.Payload, error) {
	params := url.Values{}
	params.Set("start_date", q.From.UTC().Format(time.RFC3339))
	params.Set("end_date", q.To.UTC().Format(time.RFC3339))
	params.Set("limit_count", strconv.Itoa(q.Limit))
	params.Set("limit_offset", strconv.Itoa(q.Offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/calls?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues("list_calls").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return []calls.Payload{}, nil
	}
	return DecodeCallList(body)
}

// DecodeCallList accepts a bare array or an object wrapping it in call_list, calls or data.
func DecodeCallList(body []byte) ([]calls.Payload, error) {
	var v any
	if err := decodeJSON(body, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	switch t := v.(type) {
	case []any:
		return payloadList(t), nil
	case map[string]any:
		for _, key := range []string{"call_list", "calls", "data"} {
			switch inner := t[key].(type) {
			case []any:
				return payloadList(inner), nil
			case nil:
				continue
			}
		}
		return []calls.Payload{}, nil
	case nil:
		return []calls.Payload{}, nil
	default:
		return nil, ErrUnexpectedPayload
	}
}

// payloadList keeps one entry per item so the page length stays what the provider sent.
func payloadList(items []any) []calls.Payload {
	out := make([]calls.Payload, 0, len(items))
	for _, item := range items {
		m, _ := item.(map[string]any)
		out = append(out, calls.Payload(m))
	}
	return out
}

// decodeJSON keeps numbers as json.Number so large call ids survive.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
