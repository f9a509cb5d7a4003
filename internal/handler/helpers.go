package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/doctrail/doctrail/internal/middleware"
	"github.com/doctrail/doctrail/internal/pkg/errs"
	"github.com/doctrail/doctrail/internal/pkg/response"
)

func getTenantID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextTenantIDKey)
	tenantID, _ := value.(string)
	return tenantID
}

// handleError translates the internal error taxonomy into API responses.
// Internal detail never leaks; callers get a stable code plus a short message.
func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logutil.GetLogger(c.Request.Context()).Warn("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("tenant_id", getTenantID(c)),
		zap.Error(err))
	switch {
	case errs.IsValidation(err):
		response.Error(c, http.StatusBadRequest, "invalid", err.Error())
	case errs.IsNotFound(err):
		response.Error(c, http.StatusNotFound, "not_found", "not found")
	case errs.IsConflict(err):
		response.Error(c, http.StatusConflict, "conflict", "conflict")
	case errs.IsRetryable(err):
		response.Error(c, http.StatusServiceUnavailable, "unavailable", "temporarily unavailable")
	default:
		response.Error(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
