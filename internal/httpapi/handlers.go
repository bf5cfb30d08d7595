package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shelter-platform/internal/audit"
	"shelter-platform/internal/calls"
	"shelter-platform/internal/rbac"
	"shelter-platform/internal/reporting"
	"shelter-platform/internal/telephony"
	"shelter-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups member-facing HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
// Every handler runs behind rbac.RequireTenant or rbac.RequireCapability.
type Handlers struct {
	Connections telephony.ConnectionRepository
	Calls       calls.Store
	Reports     *reporting.Service
	Audit       *audit.Service
	Now         func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func access(c *gin.Context) (rbac.Access, bool) {
	a, ok := rbac.AccessFrom(c.Request.Context())
	if !ok || a.TenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return rbac.Access{}, false
	}
	return a, true
}

func actor(c *gin.Context, a rbac.Access) audit.Actor {
	return audit.Actor{UserID: a.UserID, IP: c.ClientIP()}
}

// recordAudit never fails the request.
func (h Handlers) recordAudit(c *gin.Context, fn func(ctx context.Context, s *audit.Service) error) {
	if h.Audit == nil {
		return
	}
	if err := fn(c.Request.Context(), h.Audit); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
}

// --- Identity ---

func (h Handlers) Me(c *gin.Context) {
	a, ok := access(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":      a.UserID,
		"tenant_id":    a.TenantID,
		"capabilities": a.Capabilities.List(),
	})
}

// --- Telephony connection ---

type connectionView struct {
	telephony.TenantConnection
	HasAPIKey bool `json:"has_api_key"`
}

func viewOf(conn telephony.TenantConnection) connectionView {
	return connectionView{TenantConnection: conn, HasAPIKey: conn.APIKey != ""}
}

func (h Handlers) GetConnection(c *gin.Context) {
	a, ok := access(c)
	if !ok {
		return
	}
	conn, err := h.Connections.GetActiveByTenant(c.Request.Context(), a.TenantID)
	if err != nil {
		if errors.Is(err, telephony.ErrConnectionNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no active connection"})
			return
		}
		logger.FromGin(c).Error("connection lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "connection lookup failed"})
		return
	}
	c.JSON(http.StatusOK, viewOf(conn))
}

type configureConnectionRequest struct {
	APIKey          string `json:"api_key"`
	ReceptionNumber string `json:"reception_number"`
	OnCallNumber    string `json:"on_call_number"`
}

// PutConnection replaces the tenant's active connection.
func (h Handlers) PutConnection(c *gin.Context) {
	a, ok := access(c)
	if !ok {
		return
	}
	var req configureConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.APIKey = strings.TrimSpace(req.APIKey)
	if req.APIKey == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "api_key required"})
		return
	}

	conn, err := h.Connections.Configure(c.Request.Context(), telephony.TenantConnection{
		TenantID:        a.TenantID,
		APIKey:          req.APIKey,
		ReceptionNumber: calls.CleanNumber(req.ReceptionNumber),
		OnCallNumber:    calls.CleanNumber(req.OnCallNumber),
	})
	if err != nil {
		if errors.Is(err, telephony.ErrInvalidConnection) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid connection"})
			return
		}
		logger.FromGin(c).Error("connection configure failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "connection configure failed"})
		return
	}

	h.recordAudit(c, func(ctx context.Context, s *audit.Service) error {
		return s.LogConnectionConfigured(ctx, a.TenantID, conn.ID, actor(c, a), conn.ReceptionNumber, conn.OnCallNumber)
	})
	c.JSON(http.StatusOK, viewOf(conn))
}

func (h Handlers) DeleteConnection(c *gin.Context) {
	a, ok := access(c)
	if !ok {
		return
	}
	if err := h.Connections.Deactivate(c.Request.Context(), a.TenantID); err != nil {
		if errors.Is(err, telephony.ErrConnectionNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no active connection"})
			return
		}
		logger.FromGin(c).Error("connection deactivate failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "connection deactivate failed"})
		return
	}
	h.recordAudit(c, func(ctx context.Context, s *audit.Service) error {
		return s.LogConnectionDeactivated(ctx, a.TenantID, actor(c, a))
	})
	c.Status(http.StatusNoContent)
}

// --- Calls ---

func (h Handlers) ListCalls(c *gin.Context) {
	a, ok := access(c)
	if !ok {
		return
	}
	filter, err := parseListFilter(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Calls.ListCalls(c.Request.Context(), a.TenantID, filter)
	if err != nil {
		logger.FromGin(c).Error("call list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

func parseListFilter(c *gin.Context) (calls.ListFilter, error) {
	var f calls.ListFilter
	if v := c.Query("callback_needed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("callback_needed must be a boolean")
		}
		f.CallbackNeeded = &b
	}
	var err error
	if f.Since, err = parseTimeParam(c, "since"); err != nil {
		return f, err
	}
	if f.Until, err = parseTimeParam(c, "until"); err != nil {
		return f, err
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

func parseTimeParam(c *gin.Context, name string) (time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.New(name + " must be an RFC3339 timestamp")
	}
	return t.UTC(), nil
}

func (h Handlers) GetCall(c *gin.Context) {
	a, ok := access(c)
	if !ok {
		return
	}
	rec, err := h.Calls.GetCall(c.Request.Context(), a.TenantID, c.Param("call_id"))
	if err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type annotateCallRequest struct {
	Notes *string  `json:"notes"`
	Tags  []string `json:"tags"`
}

// PatchCall updates operator notes and tags. A later sync of the same call overwrites them.
func (h Handlers) PatchCall(c *gin.Context) {
	a, ok := access(c)
	if !ok {
		return
	}
	var req annotateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Notes == nil && req.Tags == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "notes or tags required"})
		return
	}

	ctx := c.Request.Context()
	callID := c.Param("call_id")
	rec, err := h.Calls.GetCall(ctx, a.TenantID, callID)
	if err != nil {
		h.callError(c, err)
		return
	}
	notes := rec.Notes
	if req.Notes != nil {
		notes = *req.Notes
	}
	if err := h.Calls.UpdateNotes(ctx, a.TenantID, callID, notes, req.Tags); err != nil {
		h.callError(c, err)
		return
	}
	h.recordAudit(c, func(ctx context.Context, s *audit.Service) error {
		return s.LogCallAnnotated(ctx, a.TenantID, callID, actor(c, a), req.Tags)
	})

	rec.Notes = notes
	if req.Tags != nil {
		rec.Tags = req.Tags
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) callError(c *gin.Context, err error) {
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	logger.FromGin(c).Error("call lookup failed", "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
}

// --- Reporting ---

const defaultSummaryWindow = 30 * 24 * time.Hour

func (h Handlers) CallsSummary(c *gin.Context) {
	a, ok := access(c)
	if !ok {
		return
	}
	from, err := parseTimeParam(c, "from")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to, err := parseTimeParam(c, "to")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if to.IsZero() {
		to = h.now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-defaultSummaryWindow)
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		TenantID: a.TenantID,
		Range:    reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		logger.FromGin(c).Error("calls summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Audit ---

func (h Handlers) ListAuditEvents(c *gin.Context) {
	a, ok := access(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	evs, err := h.Audit.List(c.Request.Context(), a.TenantID, limit)
	if err != nil {
		logger.FromGin(c).Error("audit list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}
