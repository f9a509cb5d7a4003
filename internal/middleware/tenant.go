package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/doctrail/doctrail/internal/pkg/response"
)

// ContextTenantIDKey carries the authenticated tenant through the request
// context. The id arrives pre-authenticated from the upstream identity layer.
const ContextTenantIDKey = "tenant_id"

const tenantHeader = "X-Tenant-Id"

// RequireTenant rejects requests without a tenant id. Every route behind it
// can rely on the id being present.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(tenantHeader))
		if tenantID == "" {
			response.Error(c, http.StatusBadRequest, "tenant_required", "missing "+tenantHeader+" header")
			c.Abort()
			return
		}
		c.Set(ContextTenantIDKey, tenantID)
		c.Next()
	}
}
