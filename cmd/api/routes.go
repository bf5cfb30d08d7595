package main

import (
	"net/http"
	"time"

	"shelter-platform/internal/auth"
	"shelter-platform/internal/callsync"
	"shelter-platform/internal/httpapi"
	"shelter-platform/internal/metrics"
	"shelter-platform/internal/rbac"
	"shelter-platform/internal/telephony"
	"shelter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	db       utils.Pinger
	auth     *auth.Manager
	resolver *rbac.Resolver
	webhook  telephony.WebhookHandler
	trigger  callsync.TriggerHandler
	api      httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	// Provider webhooks (public). The provider does not sign deliveries; the only
	// trust decision is the dialed number matching an active connection.
	r.POST("/webhooks/telephony", d.webhook.Handle)

	// Scheduler trigger. Authenticates itself: shared secret or member token.
	r.POST("/internal/sync/calls", d.trigger.Handle)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	d.api.Register(v1, d.resolver)
}
