package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/doctrail/doctrail/internal/filestore"
	"github.com/doctrail/doctrail/internal/model"
)

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUploadAcceptsDocument(t *testing.T) {
	router, f := setupRouter(t)

	body, contentType := multipartUpload(t, "contract.txt", []byte("first page\ftext"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Tenant-Id", "acme")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		Data struct {
			Message      string `json:"message"`
			DocumentID   string `json:"document_id"`
			DocumentName string `json:"document_name"`
			TenantID     string `json:"tenant_id"`
			Status       string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, "document accepted", result.Data.Message)
	require.NotEmpty(t, result.Data.DocumentID)
	require.Equal(t, "contract.txt", result.Data.DocumentName)
	require.Equal(t, "acme", result.Data.TenantID)
	require.Equal(t, model.DocumentStatusPending, result.Data.Status)

	// The raw bytes are staged and extraction is enqueued.
	require.Equal(t, []string{"docs.extract"}, f.publisher.subjects)
	var task model.ExtractTask
	require.NoError(t, json.Unmarshal(f.publisher.payloads[0], &task))
	require.Equal(t, result.Data.DocumentID, task.DocumentID)
	require.Equal(t, "acme", task.TenantID)

	staged, err := f.store.Open(req.Context(), filestore.RawKey(task.DocumentID))
	require.NoError(t, err)
	defer staged.Close()
	raw, err := io.ReadAll(staged)
	require.NoError(t, err)
	require.Equal(t, []byte("first page\ftext"), raw)
}

func TestUploadRequiresFilePart(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", bytes.NewReader(nil))
	req.Header.Set("X-Tenant-Id", "acme")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "invalid_file", errorCode(t, resp))
}

func TestUploadRejectsOversizeFile(t *testing.T) {
	router, f := setupRouter(t)

	body, contentType := multipartUpload(t, "big.txt", bytes.Repeat([]byte("a"), 1024*1024+1))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Tenant-Id", "acme")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "invalid", errorCode(t, resp))
	require.Empty(t, f.publisher.subjects)
}

func TestUploadRequiresTenantHeader(t *testing.T) {
	router, _ := setupRouter(t)

	body, contentType := multipartUpload(t, "contract.txt", []byte("text"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "tenant_required", errorCode(t, resp))
}
