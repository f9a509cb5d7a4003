package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doctrail/doctrail/internal/pkg/response"
	"github.com/doctrail/doctrail/internal/service"
)

type UploadHandler struct {
	ingest *service.IngestService
}

func NewUploadHandler(ingest *service.IngestService) *UploadHandler {
	return &UploadHandler{ingest: ingest}
}

type uploadResponse struct {
	Message      string `json:"message"`
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	TenantID     string `json:"tenant_id"`
	Status       string `json:"status"`
}

func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_file", "file is required")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_file", "failed to open file")
		return
	}
	defer opened.Close()

	doc, err := h.ingest.Submit(c.Request.Context(), getTenantID(c), file.Filename, opened, file.Size)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, uploadResponse{
		Message:      "document accepted",
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		TenantID:     doc.TenantID,
		Status:       doc.Status,
	})
}
