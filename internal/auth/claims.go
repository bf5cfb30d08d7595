package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeAccess TokenType = "access"

// Claims are the only supported JWT claims shape for this service.
// TenantID is the tenant the session selected, if any. It is a hint only:
// membership and capabilities are resolved server-side on every request.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	TokenType TokenType `json:"token_type"`
}
