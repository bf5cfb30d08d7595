package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"shelter-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// clockSkew is tolerated on exp/iat/nbf.
const clockSkew = 30 * time.Second

// Manager signs and verifies HS256 access tokens.
// Tokens identify the user only; tenant access is resolved by internal/rbac on every request.
type Manager struct {
	secret    []byte
	issuer    string
	audience  string
	accessTTL time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Manager{
		secret:    []byte(cfg.JWTSecret),
		issuer:    cfg.JWTIssuer,
		audience:  cfg.JWTAudience,
		accessTTL: ttl,
	}, nil
}

// IssueAccess signs an access token. tenantID may be empty.
func (m *Manager) IssueAccess(now time.Time, userID, tenantID string) (string, error) {
	rc := jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		ID:        uuid.NewString(),
	}
	if m.audience != "" {
		rc.Audience = jwt.ClaimStrings{m.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: rc,
		UserID:           userID,
		TenantID:         tenantID,
		TokenType:        TokenTypeAccess,
	}).SignedString(m.secret)
}

func (m *Manager) parser(now time.Time) *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(clockSkew),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	return jwt.NewParser(opts...)
}

// Verify checks signature, time claims, issuer/audience when configured, and token type.
// Every failure wraps ErrInvalidToken.
func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	var claims Claims
	_, err := m.parser(now).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	switch {
	case err != nil:
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case claims.TokenType != expected:
		return Claims{}, fmt.Errorf("%w: token_type %q", ErrInvalidToken, claims.TokenType)
	case claims.UserID == "":
		return Claims{}, fmt.Errorf("%w: user_id missing", ErrInvalidToken)
	}
	return claims, nil
}

// Authenticate verifies the value of an Authorization header.
func (m *Manager) Authenticate(header string, now time.Time) (Claims, error) {
	tok, ok := bearerToken(header)
	if !ok {
		return Claims{}, ErrMissingToken
	}
	return m.Verify(tok, TokenTypeAccess, now)
}

func bearerToken(header string) (string, bool) {
	scheme, tok, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
