package langchain

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/yellowbook/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using langchaingo embedding clients.
type Embedder struct {
	embedder  embeddings.Embedder
	dimension int
	timeout   time.Duration
	logger    *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var client embeddings.EmbedderClient
	switch config.Backend {
	case ai.BackendOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(config.EmbeddingHost),
			ollama.WithModel(config.EmbeddingModel),
		)
		if err != nil {
			return nil, err
		}
		client = llm
	default:
		llm, err := openai.New(
			openai.WithBaseURL(config.EmbeddingHost),
			openai.WithToken(config.Token()),
			openai.WithEmbeddingModel(config.EmbeddingModel),
		)
		if err != nil {
			return nil, err
		}
		client = llm
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:  embedder,
		dimension: config.Dimension,
		timeout:   config.RequestTimeout,
		logger:    slog.Default().With("component", "langchain-embedder", "backend", config.Backend),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ai.NewError(ai.KindUnavailable, "embed", errEmptyResponse)
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		err = ai.Classify("embed", err)
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}

	for _, v := range vectors {
		if err := ai.CheckDimension("embed", v, e.dimension); err != nil {
			e.logger.Error("embedding has wrong dimension", "err", err)
			return nil, err
		}
	}
	return vectors, nil
}
