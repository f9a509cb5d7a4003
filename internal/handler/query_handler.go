package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doctrail/doctrail/internal/pkg/response"
	"github.com/doctrail/doctrail/internal/service"
)

type QueryHandler struct {
	queries *service.QueryService
}

func NewQueryHandler(queries *service.QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

type queryRequest struct {
	QueryID     string `json:"query_id"`
	QueryText   string `json:"query_text"`
	ChunksLimit int    `json:"chunks_limit"`
}

type queryResponse struct {
	Message    string                 `json:"message"`
	QueryID    string                 `json:"query_id"`
	Status     string                 `json:"status"`
	Result     string                 `json:"result"`
	ListChunks []service.ChunkSummary `json:"list_chunks"`
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid", "invalid request")
		return
	}
	result, err := h.queries.Query(c.Request.Context(), getTenantID(c), req.QueryID, req.QueryText, req.ChunksLimit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, queryResponse{
		Message:    "query " + result.Message.Status,
		QueryID:    result.Message.QueryID,
		Status:     result.Message.Status,
		Result:     result.Message.Result,
		ListChunks: service.SummarizeChunks(result.Chunks),
	})
}

func (h *QueryHandler) Get(c *gin.Context) {
	detail, err := h.queries.GetMessage(c.Request.Context(), getTenantID(c), c.Param("query_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, detail)
}

func (h *QueryHandler) Abort(c *gin.Context) {
	if err := h.queries.Abort(c.Request.Context(), getTenantID(c), c.Param("query_id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"aborted": true})
}
