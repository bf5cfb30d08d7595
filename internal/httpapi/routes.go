package httpapi

import (
	"shelter-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the member-facing routes on an authenticated group.
func (h Handlers) Register(v1 *gin.RouterGroup, res *rbac.Resolver) {
	member := rbac.RequireTenant(res)

	v1.GET("/me", member, h.Me)

	conn := v1.Group("/telephony/connection")
	{
		conn.GET("", member, h.GetConnection)
		conn.PUT("", rbac.RequireCapability(res, rbac.CapManageEstablishment), h.PutConnection)
		conn.DELETE("", rbac.RequireCapability(res, rbac.CapManageEstablishment), h.DeleteConnection)
	}

	callsGroup := v1.Group("/calls")
	{
		callsGroup.GET("", member, h.ListCalls)
		callsGroup.GET("/summary", member, h.CallsSummary)
		callsGroup.GET("/:call_id", member, h.GetCall)
		callsGroup.PATCH("/:call_id", rbac.RequireCapability(res, rbac.CapManageCalls), h.PatchCall)
	}

	v1.GET("/audit", rbac.RequireCapability(res, rbac.CapManageEstablishment), h.ListAuditEvents)
}
