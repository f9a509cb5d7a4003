package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrUnavailable = errors.New("ai provider unavailable")

// GenerateOptions are per-request generation knobs.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// TokenStream is a lazy, finite sequence of generated tokens. Next returns
// io.EOF after the last token. Close releases the underlying request; it is
// safe to call at any point, which is how a consumer abandons a stream.
type TokenStream interface {
	Next() (string, error)
	Close() error
}

// IEmbedProvider turns a batch of texts into fixed-dimension vectors,
// one per input, in input order.
type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// IGenProvider streams a generated answer token by token.
type IGenProvider interface {
	Name() string
	GenerateStream(ctx context.Context, model string, prompt string, opts GenerateOptions) (TokenStream, error)
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

type Generator interface {
	Stream(ctx context.Context, prompt string) (TokenStream, error)
}

type embedder struct {
	provider IEmbedProvider
	model    string
}

func NewEmbedder(p IEmbedProvider, model string) Embedder {
	return &embedder{provider: p, model: model}
}

func (e *embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.provider.Embed(ctx, e.model, texts)
}

func (e *embedder) ModelName() string {
	return e.model
}

type generator struct {
	provider IGenProvider
	model    string
	opts     GenerateOptions
}

func NewGenerator(p IGenProvider, model string, opts GenerateOptions) Generator {
	return &generator{provider: p, model: model, opts: opts}
}

func (g *generator) Stream(ctx context.Context, prompt string) (TokenStream, error) {
	return g.provider.GenerateStream(ctx, g.model, prompt, g.opts)
}

type EmbedFactory func(args interface{}) (IEmbedProvider, error)
type GenFactory func(args interface{}) (IGenProvider, error)

var (
	embedRegistry = map[string]EmbedFactory{}
	genRegistry   = map[string]GenFactory{}
)

func RegisterEmbed(name string, factory EmbedFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	embedRegistry[key] = factory
}

func RegisterGen(name string, factory GenFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	genRegistry[key] = factory
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := embedRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embed provider: %s", name)
	}
	return factory(args)
}

func NewGenProvider(name string, args interface{}) (IGenProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := genRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported generation provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}

// CollectStream drains a stream and returns the concatenated text.
func CollectStream(stream TokenStream) (string, error) {
	defer stream.Close()
	var sb strings.Builder
	for {
		token, err := stream.Next()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(token)
	}
}
