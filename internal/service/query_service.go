package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/doctrail/doctrail/internal/ai"
	"github.com/doctrail/doctrail/internal/config"
	"github.com/doctrail/doctrail/internal/model"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type messageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	GetByQueryID(ctx context.Context, tenantID, queryID string) (*model.Message, error)
	GetStatus(ctx context.Context, messageID string) (string, error)
	SetTerminal(ctx context.Context, messageID, status, result, errText string) error
}

type tokenStore interface {
	Append(ctx context.Context, token *model.Token) error
	ListByMessage(ctx context.Context, messageID string) ([]model.Token, error)
}

type linkStore interface {
	Link(ctx context.Context, messageID string, chunkIDs []string) error
	ListChunkIDs(ctx context.Context, messageID string) ([]string, error)
}

type chunkSearcher interface {
	QueryByVector(ctx context.Context, tenantID string, vector []float32, k int) ([]model.ChunkResult, error)
}

// QueryService answers tenant queries and keeps the audit trail: every chunk
// that fed the answer and every generated token is durably recorded.
type QueryService struct {
	cfg       config.SearchConfig
	messages  messageStore
	tokens    tokenStore
	links     linkStore
	chunks    chunkSearcher
	embedder  ai.Embedder
	generator ai.Generator
}

func NewQueryService(cfg config.SearchConfig, messages messageStore, tokens tokenStore, links linkStore, chunks chunkSearcher, embedder ai.Embedder, generator ai.Generator) *QueryService {
	return &QueryService{cfg: cfg, messages: messages, tokens: tokens, links: links, chunks: chunks, embedder: embedder, generator: generator}
}

// QueryResult is the synchronous answer: the terminal message plus the chunks
// cited as evidence.
type QueryResult struct {
	Message *model.Message      `json:"message"`
	Chunks  []model.ChunkResult `json:"list_chunks"`
}

// ChunkSummary is the caller-facing view of a cited chunk.
type ChunkSummary struct {
	ChunkID     string  `json:"chunk_id"`
	DocID       string  `json:"doc_id"`
	DocName     string  `json:"doc_name"`
	PageNumber  int     `json:"page_number"`
	BeginOffset int     `json:"begin_offset"`
	EndOffset   int     `json:"end_offset"`
	ChunkText   string  `json:"chunk_text"`
	Distance    float64 `json:"distance"`
}

func SummarizeChunks(results []model.ChunkResult) []ChunkSummary {
	out := make([]ChunkSummary, 0, len(results))
	for _, r := range results {
		out = append(out, ChunkSummary{
			ChunkID:     r.Chunk.ID,
			DocID:       r.Chunk.DocID,
			DocName:     r.DocName,
			PageNumber:  r.Chunk.PageNumber,
			BeginOffset: r.Chunk.BeginOffset,
			EndOffset:   r.Chunk.EndOffset,
			ChunkText:   r.Chunk.ChunkText,
			Distance:    r.Distance,
		})
	}
	return out
}

// MessageDetail is the polling view of a message: its current status/result
// plus the tokens persisted so far.
type MessageDetail struct {
	Message  *model.Message `json:"message"`
	Tokens   []model.Token  `json:"tokens"`
	ChunkIDs []string       `json:"chunk_ids"`
}

// Query runs the full retrieve-generate-audit pipeline for one question.
// Retrieval failure fails the message before any token exists; generation
// failure keeps the retrieved-chunk links and any tokens already persisted.
func (s *QueryService) Query(ctx context.Context, tenantID, queryID, queryText string, k int) (*QueryResult, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errs.Validation("tenant id is required")
	}
	if strings.TrimSpace(queryID) == "" {
		return nil, errs.Validation("query id is required")
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, errs.Validation("query text is required")
	}
	if k <= 0 || k > s.cfg.MaxChunks {
		k = s.cfg.MaxChunks
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("tenant_id", tenantID),
		zap.String("query_id", queryID))

	msg := &model.Message{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		QueryID:   queryID,
		QueryText: queryText,
		Status:    model.MessageStatusPending,
		Ctime:     time.Now().Unix(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		if errs.IsConflict(err) {
			return nil, errs.Validation("query %s already exists for this tenant", queryID)
		}
		return nil, err
	}

	results, err := s.retrieve(ctx, tenantID, queryText, k)
	if err != nil {
		logger.Error("retrieval failed", zap.Error(err))
		s.fail(ctx, logger, msg, err)
		return nil, err
	}

	// Provenance is written before generation starts, so evidence of what
	// was considered survives a generation failure.
	chunkIDs := make([]string, 0, len(results))
	for _, r := range results {
		chunkIDs = append(chunkIDs, r.Chunk.ID)
	}
	if err := s.links.Link(ctx, msg.ID, chunkIDs); err != nil {
		logger.Error("record provenance failed", zap.Error(err))
		s.fail(ctx, logger, msg, err)
		return nil, err
	}

	status, err := s.generate(ctx, logger, msg, queryText, results)
	if err != nil {
		s.fail(ctx, logger, msg, err)
		msg.Status = model.MessageStatusFailed
		msg.Error = err.Error()
		return &QueryResult{Message: msg, Chunks: results}, nil
	}
	msg.Status = status
	if status == model.MessageStatusCompleted {
		tokens, terr := s.tokens.ListByMessage(ctx, msg.ID)
		if terr == nil {
			msg.Result = concatTokens(tokens)
		}
	}
	logger.Info("query finished",
		zap.String("status", msg.Status),
		zap.Int("chunks", len(results)))
	return &QueryResult{Message: msg, Chunks: results}, nil
}

func (s *QueryService) retrieve(ctx context.Context, tenantID, queryText string, k int) ([]model.ChunkResult, error) {
	vectors, err := s.embedder.EmbedBatch(ctx, []string{queryText})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, errs.Provider(fmt.Errorf("expected 1 query vector, got %d", len(vectors)))
	}
	return s.chunks.QueryByVector(ctx, tenantID, vectors[0], k)
}

// generate streams the answer, appending each token as it arrives. The
// message status is re-read between appends; a concurrent abort stops
// persistence at the next checkpoint.
func (s *QueryService) generate(ctx context.Context, logger *zap.Logger, msg *model.Message, queryText string, results []model.ChunkResult) (string, error) {
	stream, err := s.generator.Stream(ctx, buildPrompt(queryText, results))
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var parts []string
	number := 0
	for {
		text, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Partial tokens stay on record; the stream is not retried.
			return "", err
		}

		status, serr := s.messages.GetStatus(ctx, msg.ID)
		if serr != nil {
			return "", serr
		}
		if status == model.MessageStatusAborted {
			logger.Info("query aborted, stopping token persistence",
				zap.Int("tokens", number))
			return model.MessageStatusAborted, nil
		}
		if status != model.MessageStatusPending {
			return status, nil
		}

		token := &model.Token{
			MessageID:   msg.ID,
			TokenNumber: number,
			TokenText:   text,
			Ctime:       time.Now().Unix(),
		}
		if err := s.tokens.Append(ctx, token); err != nil {
			return "", err
		}
		parts = append(parts, text)
		number++
	}

	result := strings.Join(parts, "")
	if err := s.messages.SetTerminal(ctx, msg.ID, model.MessageStatusCompleted, result, ""); err != nil {
		if errs.IsConflict(err) {
			// Lost the race against an abort; the terminal status wins.
			status, serr := s.messages.GetStatus(ctx, msg.ID)
			if serr != nil {
				return "", serr
			}
			return status, nil
		}
		return "", err
	}
	return model.MessageStatusCompleted, nil
}

// GetMessage serves polling while generation is in flight and audit reads
// afterwards.
func (s *QueryService) GetMessage(ctx context.Context, tenantID, queryID string) (*MessageDetail, error) {
	msg, err := s.messages.GetByQueryID(ctx, tenantID, queryID)
	if err != nil {
		return nil, err
	}
	tokens, err := s.tokens.ListByMessage(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	chunkIDs, err := s.links.ListChunkIDs(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	return &MessageDetail{Message: msg, Tokens: tokens, ChunkIDs: chunkIDs}, nil
}

// Abort requests cooperative cancellation of an in-flight query. The
// generation loop notices at its next checkpoint; a message already terminal
// is a conflict.
func (s *QueryService) Abort(ctx context.Context, tenantID, queryID string) error {
	msg, err := s.messages.GetByQueryID(ctx, tenantID, queryID)
	if err != nil {
		return err
	}
	if model.IsTerminalMessageStatus(msg.Status) {
		return errs.ErrConflict
	}
	return s.messages.SetTerminal(ctx, msg.ID, model.MessageStatusAborted, "", "aborted by caller")
}

func (s *QueryService) fail(ctx context.Context, logger *zap.Logger, msg *model.Message, cause error) {
	if err := s.messages.SetTerminal(ctx, msg.ID, model.MessageStatusFailed, "", cause.Error()); err != nil && !errs.IsConflict(err) {
		logger.Error("mark message failed", zap.Error(err))
	}
}

func buildPrompt(queryText string, results []model.ChunkResult) string {
	var sb strings.Builder
	sb.WriteString("Answer the question using only the context below.\n\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] (%s)\n%s\n\n", i+1, r.DocName, r.Chunk.ChunkText)
	}
	sb.WriteString("Question: ")
	sb.WriteString(queryText)
	return sb.String()
}

func concatTokens(tokens []model.Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.TokenText)
	}
	return sb.String()
}
