package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"shelter-platform/internal/auth"
	"shelter-platform/internal/calls"
	"shelter-platform/internal/config"
	"shelter-platform/internal/httpapi"
	"shelter-platform/internal/rbac"
	"shelter-platform/internal/telephony"
)

func testRouter(t *testing.T) (*gin.Engine, pgxmock.PgxPoolIface) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	t.Cleanup(mock.Close)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "s", AccessTokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	store := calls.NewMemoryStore()
	conns := telephony.NewMemoryConnections()
	resolver := rbac.NewResolver(rbac.NewMemoryRepository())

	r := gin.New()
	registerRoutes(r, routeDeps{
		db:       mock,
		auth:     m,
		resolver: resolver,
		webhook:  telephony.WebhookHandler{Ingestor: telephony.NewIngestor(conns, store)},
		api:      httpapi.Handlers{Connections: conns, Calls: store},
	})
	return r, mock
}

func TestHealthz(t *testing.T) {
	r, mock := testRouter(t)

	mock.ExpectPing()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	mock.ExpectPing().WillReturnError(errors.New("down"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestRoutes_Mounted(t *testing.T) {
	r, _ := testRouter(t)
	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/internal/sync/calls", http.StatusUnauthorized},
		{http.MethodGet, "/v1/calls", http.StatusUnauthorized},
		{http.MethodGet, "/v1/me", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, w.Code)
		}
	}
}
