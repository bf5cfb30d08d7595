package rbac

import (
	"net/http"
	"strings"

	"shelter-platform/internal/auth"
	"shelter-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// HeaderTenantID selects the tenant for a request. It wins over the token's tenant claim.
const HeaderTenantID = "X-Tenant-Id"

// TenantSelection returns the explicit tenant selection of the request, or "".
func TenantSelection(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(HeaderTenantID)); v != "" {
		return v
	}
	return auth.TenantID(c.Request.Context())
}

// RequireTenant admits any member of the selected tenant.
// Use it after auth.RequireAccessToken.
func RequireTenant(res *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := auth.UserID(c.Request.Context())
		a, err := res.RequireTenant(c.Request.Context(), uid, TenantSelection(c))
		admit(c, a, err)
	}
}

// RequireCapability admits members whose groups grant required.
// It panics on an unknown capability so a typo fails at route registration.
func RequireCapability(res *Resolver, required Capability) gin.HandlerFunc {
	if !required.Valid() {
		panic("rbac: unknown capability " + string(required))
	}
	return func(c *gin.Context) {
		uid, _ := auth.UserID(c.Request.Context())
		a, err := res.RequireCapability(c.Request.Context(), uid, TenantSelection(c), required)
		admit(c, a, err)
	}
}

func admit(c *gin.Context, a Access, err error) {
	if err != nil {
		status := StatusFor(err)
		if status == http.StatusInternalServerError {
			logger.FromGin(c).Error("permission resolution failed", "err", err)
			c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
			return
		}
		msg := "forbidden"
		if status == http.StatusUnauthorized {
			msg = "unauthenticated"
		}
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}
	ctx := WithAccess(c.Request.Context(), a)
	ctx = logger.WithTenant(ctx, a.TenantID)
	c.Request = c.Request.WithContext(ctx)
	c.Set("tenant_id", a.TenantID)
	c.Next()
}
