package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/doctrail/doctrail/internal/ai"
	"github.com/doctrail/doctrail/internal/config"
	"github.com/doctrail/doctrail/internal/filestore"
	"github.com/doctrail/doctrail/internal/handler"
	"github.com/doctrail/doctrail/internal/middleware"
	"github.com/doctrail/doctrail/internal/model"
	"github.com/doctrail/doctrail/internal/pkg/errs"
	"github.com/doctrail/doctrail/internal/service"
)

type fakeDocRepo struct {
	mu      sync.Mutex
	docs    map[string]*model.Document
	listErr error
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[string]*model.Document)}
}

func (r *fakeDocRepo) Create(ctx context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.docs {
		if existing.TenantID == doc.TenantID && existing.Name == doc.Name {
			return errs.ErrConflict
		}
	}
	copied := *doc
	r.docs[doc.TenantID+"/"+doc.ID] = &copied
	return nil
}

func (r *fakeDocRepo) UpdateStatus(ctx context.Context, tenantID, docID, status, errText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[tenantID+"/"+docID]
	if !ok {
		return errs.ErrNotFound
	}
	doc.Status = status
	doc.Error = errText
	return nil
}

func (r *fakeDocRepo) GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[tenantID+"/"+docID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (r *fakeDocRepo) List(ctx context.Context, tenantID string, limit, offset uint) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []model.Document
	for _, doc := range r.docs {
		if doc.TenantID == tenantID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (r *fakeDocRepo) Delete(ctx context.Context, tenantID, docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[tenantID+"/"+docID]; !ok {
		return errs.ErrNotFound
	}
	delete(r.docs, tenantID+"/"+docID)
	return nil
}

type fakeChunkCounter struct {
	count int
}

func (f *fakeChunkCounter) CountByDocument(ctx context.Context, tenantID, docID string) (int, error) {
	return f.count, nil
}

type capturingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *capturingPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, payload)
	return nil
}

type memMessageStore struct {
	mu        sync.Mutex
	byID      map[string]*model.Message
	byQueryID map[string]*model.Message
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{
		byID:      make(map[string]*model.Message),
		byQueryID: make(map[string]*model.Message),
	}
}

func (s *memMessageStore) Create(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := msg.TenantID + "/" + msg.QueryID
	if _, ok := s.byQueryID[key]; ok {
		return errs.ErrConflict
	}
	copied := *msg
	s.byID[msg.ID] = &copied
	s.byQueryID[key] = &copied
	return nil
}

func (s *memMessageStore) GetByQueryID(ctx context.Context, tenantID, queryID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byQueryID[tenantID+"/"+queryID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (s *memMessageStore) GetStatus(ctx context.Context, messageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byID[messageID]
	if !ok {
		return "", errs.ErrNotFound
	}
	return msg.Status, nil
}

func (s *memMessageStore) SetTerminal(ctx context.Context, messageID, status, result, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byID[messageID]
	if !ok {
		return errs.ErrNotFound
	}
	if msg.Status != model.MessageStatusPending {
		return errs.ErrConflict
	}
	msg.Status = status
	msg.Result = result
	msg.Error = errText
	return nil
}

type memTokenStore struct {
	mu       sync.Mutex
	appended []model.Token
}

func (s *memTokenStore) Append(ctx context.Context, token *model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, *token)
	return nil
}

func (s *memTokenStore) ListByMessage(ctx context.Context, messageID string) ([]model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Token
	for _, t := range s.appended {
		if t.MessageID == messageID {
			out = append(out, t)
		}
	}
	return out, nil
}

type memLinkStore struct {
	mu     sync.Mutex
	linked map[string][]string
}

func (s *memLinkStore) Link(ctx context.Context, messageID string, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linked[messageID] = chunkIDs
	return nil
}

func (s *memLinkStore) ListChunkIDs(ctx context.Context, messageID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linked[messageID], nil
}

type staticSearcher struct {
	results []model.ChunkResult
}

func (s *staticSearcher) QueryByVector(ctx context.Context, tenantID string, vector []float32, k int) ([]model.ChunkResult, error) {
	if len(s.results) > k {
		return s.results[:k], nil
	}
	return s.results, nil
}

type staticEmbedder struct{}

func (staticEmbedder) ModelName() string { return "test-model" }

func (staticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type tokenSliceStream struct {
	tokens []string
	pos    int
}

func (s *tokenSliceStream) Next() (string, error) {
	if s.pos >= len(s.tokens) {
		return "", io.EOF
	}
	t := s.tokens[s.pos]
	s.pos++
	return t, nil
}

func (s *tokenSliceStream) Close() error { return nil }

type staticGenerator struct {
	tokens []string
}

func (g *staticGenerator) Stream(ctx context.Context, prompt string) (ai.TokenStream, error) {
	return &tokenSliceStream{tokens: g.tokens}, nil
}

type fixture struct {
	docs      *fakeDocRepo
	publisher *capturingPublisher
	messages  *memMessageStore
	tokens    *memTokenStore
	links     *memLinkStore
	store     filestore.Store
}

func setupRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := filestore.New(config.FileStoreConfig{Type: "local", Dir: t.TempDir()})
	require.NoError(t, err)

	docs := newFakeDocRepo()
	publisher := &capturingPublisher{}
	messages := newMemMessageStore()
	tokens := &memTokenStore{}
	links := &memLinkStore{linked: make(map[string][]string)}
	searcher := &staticSearcher{results: []model.ChunkResult{
		{
			Chunk: model.DocumentChunk{
				ID:          "chunk-1",
				TenantID:    "acme",
				DocID:       "doc-1",
				ChunkText:   "contract text",
				PageNumber:  0,
				BeginOffset: 0,
				EndOffset:   13,
			},
			DocName:  "contract.txt",
			Distance: 0.12,
		},
	}}

	ingest := service.NewIngestService(docs, store, publisher, "docs.extract", 1)
	documents := service.NewDocumentService(docs, &fakeChunkCounter{count: 4}, store)
	queries := service.NewQueryService(
		config.SearchConfig{MaxTokens: 256, Temperature: 0.2, MaxChunks: 5},
		messages, tokens, links, searcher,
		staticEmbedder{}, &staticGenerator{tokens: []string{"The ", "answer."}},
	)

	deps := handler.RouterDeps{
		Upload:      handler.NewUploadHandler(ingest),
		Documents:   handler.NewDocumentHandler(documents),
		Queries:     handler.NewQueryHandler(queries),
		WriteWindow: 0,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
		),
	)
	require.NoError(t, err)

	return engine, &fixture{
		docs:      docs,
		publisher: publisher,
		messages:  messages,
		tokens:    tokens,
		links:     links,
		store:     store,
	}
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error.Code
}

func seedDocument(f *fixture, tenantID, id, name, status string) {
	f.docs.mu.Lock()
	defer f.docs.mu.Unlock()
	f.docs.docs[tenantID+"/"+id] = &model.Document{
		ID:       id,
		TenantID: tenantID,
		Name:     name,
		Status:   status,
		Ctime:    time.Now().UnixMilli(),
	}
}
