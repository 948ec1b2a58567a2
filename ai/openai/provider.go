package openai

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/poiesic/yellowbook/ai"
)

var errEmptyResponse = errors.New("provider returned an empty response")

// Provider implements ai.AIProvider, ai.Embedder and ai.Completer on top
// of openai-go clients.
type Provider struct {
	embedClient    openai.Client
	completeClient openai.Client
	config         *ai.Config
	logger         *slog.Logger
}

var (
	_ ai.AIProvider = (*Provider)(nil)
	_ ai.Embedder   = (*Provider)(nil)
	_ ai.Completer  = (*Provider)(nil)
)

// NewProvider creates a provider for the openai backend.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	return newProvider(config)
}

func newProvider(config *ai.Config, extra ...option.RequestOption) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientFor := func(host string) openai.Client {
		opts := []option.RequestOption{
			option.WithAPIKey(config.Token()),
			option.WithBaseURL(host),
			option.WithMaxRetries(0),
		}
		if config.RequestTimeout > 0 {
			opts = append(opts, option.WithRequestTimeout(config.RequestTimeout))
		}
		return openai.NewClient(append(opts, extra...)...)
	}

	return &Provider{
		embedClient:    clientFor(config.EmbeddingHost),
		completeClient: clientFor(config.CompletionHost),
		config:         config,
		logger:         slog.Default().With("component", "openai-provider"),
	}, nil
}

// Embedder returns the provider itself.
func (p *Provider) Embedder() ai.Embedder {
	return p
}

// Completer returns the provider itself.
func (p *Provider) Completer() ai.Completer {
	return p
}

// Close is a no-op; the SDK holds no resources beyond its HTTP client.
func (p *Provider) Close() error {
	return nil
}

// EmbedText generates a vector embedding for a single text string.
func (p *Provider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)}, 1)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in one request.
func (p *Provider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return p.embed(ctx, openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}, len(texts))
}

func (p *Provider) embed(ctx context.Context, input openai.EmbeddingNewParamsInputUnion, want int) ([][]float32, error) {
	p.logger.Debug("generating embeddings", "count", want)

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.config.EmbeddingModel),
		Input: input,
	}
	// Only the text-embedding-3 family accepts a requested width.
	if strings.HasPrefix(p.config.EmbeddingModel, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(p.config.Dimension))
	}

	resp, err := p.embedClient.Embeddings.New(ctx, params)
	if err != nil {
		err = classify("embed", err)
		p.logger.Error("failed to generate embeddings", "err", err)
		return nil, err
	}
	if len(resp.Data) != want {
		return nil, ai.NewError(ai.KindUnavailable, "embed", errEmptyResponse)
	}

	vectors := make([][]float32, want)
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= want {
			return nil, ai.NewError(ai.KindUnavailable, "embed", errEmptyResponse)
		}
		v := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			v[i] = float32(f)
		}
		if err := ai.CheckDimension("embed", v, p.config.Dimension); err != nil {
			return nil, err
		}
		vectors[d.Index] = v
	}
	return vectors, nil
}

// Complete sends prompt as a single user message and returns the reply.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	p.logger.Debug("generating completion", "length", len(prompt))

	resp, err := p.completeClient.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.config.CompletionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		err = classify("complete", err)
		p.logger.Error("failed to generate completion", "err", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ai.NewError(ai.KindUnavailable, "complete", errEmptyResponse)
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ai.NewError(ai.KindUnavailable, "complete", errEmptyResponse)
	}
	return answer, nil
}

// classify prefers the SDK's typed status code over text matching.
func classify(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ai.NewError(ai.ClassifyStatus(apiErr.StatusCode), op, err)
	}
	return ai.Classify(op, err)
}
