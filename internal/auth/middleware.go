package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not perform RBAC checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.Authenticate(c.GetHeader(authorizationHeader), time.Now())
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrMissingToken) {
				msg = "missing bearer token"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.UserID, claims.TenantID)
		c.Request = c.Request.WithContext(ctx)

		// Also store on gin context for handler convenience.
		c.Set("user_id", claims.UserID)
		c.Set("tenant_id", claims.TenantID)

		c.Next()
	}
}
