package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/doctrail/doctrail/internal/model"
)

func postQuery(router http.Handler, tenantID string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search/query", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", tenantID)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestQueryRunsToCompletion(t *testing.T) {
	router, f := setupRouter(t)

	resp := postQuery(router, "acme", `{"query_id":"q-1","query_text":"what does the contract say?","chunks_limit":3}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		Data struct {
			Message    string `json:"message"`
			QueryID    string `json:"query_id"`
			Status     string `json:"status"`
			Result     string `json:"result"`
			ListChunks []struct {
				ChunkID string `json:"chunk_id"`
				DocName string `json:"doc_name"`
			} `json:"list_chunks"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, "query completed", result.Data.Message)
	require.Equal(t, "q-1", result.Data.QueryID)
	require.Equal(t, model.MessageStatusCompleted, result.Data.Status)
	require.Equal(t, "The answer.", result.Data.Result)
	require.Len(t, result.Data.ListChunks, 1)
	require.Equal(t, "chunk-1", result.Data.ListChunks[0].ChunkID)
	require.Equal(t, "contract.txt", result.Data.ListChunks[0].DocName)

	// The audit trail is readable back through the polling endpoint.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/queries/q-1", nil)
	req.Header.Set("X-Tenant-Id", "acme")
	getResp := httptest.NewRecorder()
	router.ServeHTTP(getResp, req)
	require.Equal(t, http.StatusOK, getResp.Code)

	var detail struct {
		Data struct {
			Message  *model.Message `json:"message"`
			Tokens   []model.Token  `json:"tokens"`
			ChunkIDs []string       `json:"chunk_ids"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(getResp.Body.Bytes(), &detail))
	require.Equal(t, model.MessageStatusCompleted, detail.Data.Message.Status)
	require.Len(t, detail.Data.Tokens, 2)
	require.Equal(t, 0, detail.Data.Tokens[0].TokenNumber)
	require.Equal(t, []string{"chunk-1"}, detail.Data.ChunkIDs)
	require.NotEmpty(t, f.links.linked)
}

func TestQueryDuplicateQueryID(t *testing.T) {
	router, _ := setupRouter(t)

	resp := postQuery(router, "acme", `{"query_id":"q-dup","query_text":"first"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = postQuery(router, "acme", `{"query_id":"q-dup","query_text":"second"}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "invalid", errorCode(t, resp))
}

func TestQueryRejectsMalformedBody(t *testing.T) {
	router, _ := setupRouter(t)

	resp := postQuery(router, "acme", `{"query_id":`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "invalid", errorCode(t, resp))
}

func TestAbortCompletedQueryConflicts(t *testing.T) {
	router, _ := setupRouter(t)

	resp := postQuery(router, "acme", `{"query_id":"q-done","query_text":"question"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/queries/q-done/abort", nil)
	req.Header.Set("X-Tenant-Id", "acme")
	abortResp := httptest.NewRecorder()
	router.ServeHTTP(abortResp, req)
	require.Equal(t, http.StatusConflict, abortResp.Code)
	require.Equal(t, "conflict", errorCode(t, abortResp))
}

func TestGetUnknownQueryReturns404(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queries/missing", nil)
	req.Header.Set("X-Tenant-Id", "acme")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Equal(t, "not_found", errorCode(t, resp))
}
