package callsync

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"shelter-platform/internal/auth"
	"shelter-platform/internal/rbac"
	"shelter-platform/pkg/logger"
)

// HeaderSyncSecret carries the scheduler's shared secret.
const HeaderSyncSecret = "X-Sync-Secret"

type Runner interface {
	Run(ctx context.Context) (RunResult, error)
	RunTenant(ctx context.Context, tenantID string) (RunResult, error)
}

type TokenVerifier interface {
	Authenticate(header string, now time.Time) (auth.Claims, error)
}

type TenantAuthorizer interface {
	RequireCapability(ctx context.Context, userID, tenantID string, c rbac.Capability) (rbac.Access, error)
}

// TriggerHandler starts a pull sync on demand.
//
// A matching X-Sync-Secret runs every tenant (or only the body's tenant_id).
// Without it, a member holding manage_establishment may sync their own tenant.
// An empty Secret disables the secret path only.
type TriggerHandler struct {
	Runner     Runner
	Secret     string
	Tokens     TokenVerifier
	Authorizer TenantAuthorizer
}

type triggerRequest struct {
	TenantID string `json:"tenant_id"`
}

func (h TriggerHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	// Credentials are checked before the body is read, so an anonymous caller
	// always gets 401 whatever it sends.
	bySecret := h.secretMatches(c.GetHeader(HeaderSyncSecret))
	var claims auth.Claims
	if !bySecret {
		var ok bool
		if claims, ok = h.authenticate(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
	}

	req, err := readTriggerRequest(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	var res RunResult
	switch {
	case bySecret && req.TenantID == "":
		res, err = h.Runner.Run(ctx)
	case bySecret:
		res, err = h.Runner.RunTenant(ctx, req.TenantID)
	default:
		if req.TenantID == "" || !h.memberMayRun(c, claims, req.TenantID) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		res, err = h.Runner.RunTenant(ctx, req.TenantID)
	}

	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Error("call sync failed", "tenant_id", req.TenantID, "err", err)
			c.AbortWithStatusJSON(status, gin.H{"error": "sync failed"})
			return
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	log.Info("call sync finished", "tenant_id", req.TenantID, "synced", res.Synced, "failed", res.Failed())
	c.JSON(http.StatusOK, gin.H{"synced": res.Synced})
}

func (h TriggerHandler) secretMatches(got string) bool {
	if h.Secret == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) == 1
}

// authenticate verifies the bearer token of the member path.
func (h TriggerHandler) authenticate(c *gin.Context) (auth.Claims, bool) {
	if h.Tokens == nil || h.Authorizer == nil {
		return auth.Claims{}, false
	}
	claims, err := h.Tokens.Authenticate(c.GetHeader("Authorization"), time.Now())
	if err != nil {
		return auth.Claims{}, false
	}
	return claims, true
}

func (h TriggerHandler) memberMayRun(c *gin.Context, claims auth.Claims, tenantID string) bool {
	if _, err := h.Authorizer.RequireCapability(c.Request.Context(), claims.UserID, tenantID, rbac.CapManageEstablishment); err != nil {
		if rbac.StatusFor(err) == http.StatusInternalServerError {
			logger.FromGin(c).Error("permission resolution failed", "err", err)
		}
		return false
	}
	return true
}

func readTriggerRequest(r io.Reader) (triggerRequest, error) {
	var req triggerRequest
	if r == nil {
		return req, nil
	}
	body, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return req, err
	}
	if strings.TrimSpace(string(body)) == "" {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, err
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	return req, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoActiveConnection):
		return http.StatusNotFound
	case errors.Is(err, ErrNoReceptionNumber):
		return http.StatusBadRequest
	case errors.Is(err, ErrRunInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
