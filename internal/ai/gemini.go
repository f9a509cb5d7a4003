package ai

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiEmbedProvider struct {
	apiKey string
}

func (p *geminiEmbedProvider) Name() string {
	return "gemini"
}

func (p *geminiEmbedProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}
	resp, err := client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}
	vectors := make([][]float32, 0, len(texts))
	for _, emb := range resp.Embeddings {
		vectors = append(vectors, emb.Values)
	}
	return vectors, nil
}

type geminiGenProvider struct {
	apiKey string
}

func (p *geminiGenProvider) Name() string {
	return "gemini"
}

func (p *geminiGenProvider) GenerateStream(ctx context.Context, model string, prompt string, opts GenerateOptions) (TokenStream, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	var config *genai.GenerateContentConfig
	if opts.Temperature > 0 || opts.MaxTokens > 0 {
		config = &genai.GenerateContentConfig{}
		if opts.Temperature > 0 {
			temp := float32(opts.Temperature)
			config.Temperature = &temp
		}
		if opts.MaxTokens > 0 {
			config.MaxOutputTokens = int32(opts.MaxTokens)
		}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	tokens := make(chan streamItem)
	go func() {
		defer close(tokens)
		for resp, err := range client.Models.GenerateContentStream(
			streamCtx,
			model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
			config,
		) {
			if err != nil {
				select {
				case tokens <- streamItem{err: err}:
				case <-streamCtx.Done():
				}
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case tokens <- streamItem{token: text}:
			case <-streamCtx.Done():
				return
			}
		}
	}()
	return &chanStream{items: tokens, cancel: cancel}, nil
}

type streamItem struct {
	token string
	err   error
}

// chanStream adapts a producer goroutine into the pull-style TokenStream.
// Close cancels the producer; a blocked send unblocks on cancellation.
type chanStream struct {
	items  chan streamItem
	cancel context.CancelFunc
}

func (s *chanStream) Next() (string, error) {
	item, ok := <-s.items
	if !ok {
		return "", io.EOF
	}
	if item.err != nil {
		return "", item.err
	}
	return item.token, nil
}

func (s *chanStream) Close() error {
	s.cancel()
	return nil
}

func createGeminiEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &geminiEmbedProvider{apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func createGeminiGenFactory(args interface{}) (IGenProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &geminiGenProvider{apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func init() {
	RegisterEmbed("gemini", createGeminiEmbedFactory)
	RegisterGen("gemini", createGeminiGenFactory)
}
