package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/doctrail/doctrail/internal/pkg/response"
	"github.com/doctrail/doctrail/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

func (h *DocumentHandler) List(c *gin.Context) {
	limit := uint(50)
	if value := c.Query("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			limit = uint(parsed)
		}
	}
	offset := uint(0)
	if value := c.Query("offset"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			offset = uint(parsed)
		}
	}
	docs, err := h.documents.List(c.Request.Context(), getTenantID(c), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	detail, err := h.documents.Get(c.Request.Context(), getTenantID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, detail)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), getTenantID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}
