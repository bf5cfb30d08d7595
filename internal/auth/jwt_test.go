package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shelter-platform/internal/config"

	"github.com/gin-gonic/gin"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "issuer",
		JWTAudience:    "aud",
		AccessTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.IssueAccess(now, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(tok, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.TenantID != "tenant-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.IssueAccess(now, "u", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, TokenTypeAccess, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	a, _ := NewManager(config.AuthConfig{JWTSecret: "a", AccessTokenTTL: time.Minute})
	b, _ := NewManager(config.AuthConfig{JWTSecret: "b", AccessTokenTTL: time.Minute})
	now := time.Now()
	tok, _ := a.IssueAccess(now, "u", "")
	if _, err := b.Verify(tok, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected signature failure")
	}
}

func TestAuthenticate_HeaderErrors(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})
	if _, err := m.Authenticate("", time.Now()); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := m.Authenticate("Basic abc", time.Now()); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken for non-bearer, got %v", err)
	}
	if _, err := m.Authenticate("Bearer nope", time.Now()); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRequireAccessToken_InjectsIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})
	tok, _ := m.IssueAccess(time.Now(), "u1", "t1")

	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) {
		ctx := c.Request.Context()
		uid, err := UserID(ctx)
		if err != nil || uid != "u1" || TenantID(ctx) != "t1" {
			c.Status(http.StatusTeapot)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestUserID_MissingIdentity(t *testing.T) {
	if _, err := UserID(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	issuer, _ := NewManager(config.AuthConfig{JWTSecret: "s", JWTAudience: "shelter-app", AccessTokenTTL: time.Minute})
	verifier, _ := NewManager(config.AuthConfig{JWTSecret: "s", JWTAudience: "other-app", AccessTokenTTL: time.Minute})
	now := time.Now()
	tok, _ := issuer.IssueAccess(now, "u", "")
	if _, err := verifier.Verify(tok, TokenTypeAccess, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign audience, got %v", err)
	}
}

func TestAuthenticate_SchemeIsCaseInsensitive(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret"})
	now := time.Now()
	tok, _ := m.IssueAccess(now, "u", "")
	if _, err := m.Authenticate("bearer "+tok, now); err != nil {
		t.Fatalf("expected lowercase scheme accepted, got %v", err)
	}
	if _, err := m.Authenticate("Bearer   ", now); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken for empty token, got %v", err)
	}
}
