package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/doctrail/doctrail/internal/middleware"
)

type RouterDeps struct {
	Upload      *UploadHandler
	Documents   *DocumentHandler
	Queries     *QueryHandler
	WriteWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	tenantGroup := api.Group("")
	tenantGroup.Use(middleware.RequireTenant())

	tenantGroup.GET("/documents", deps.Documents.List)
	tenantGroup.GET("/documents/:id", deps.Documents.Get)
	tenantGroup.DELETE("/documents/:id", deps.Documents.Delete)

	tenantGroup.GET("/queries/:query_id", deps.Queries.Get)
	tenantGroup.POST("/queries/:query_id/abort", deps.Queries.Abort)

	writeGroup := tenantGroup.Group("")
	writeGroup.Use(middleware.RateLimit(deps.WriteWindow))
	writeGroup.POST("/documents/upload", deps.Upload.Upload)
	writeGroup.POST("/search/query", deps.Queries.Query)
}
