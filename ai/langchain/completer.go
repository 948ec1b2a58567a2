package langchain

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/yellowbook/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var errEmptyResponse = errors.New("provider returned an empty response")

// Completer implements ai.Completer using a langchaingo chat model.
type Completer struct {
	client  llms.Model
	timeout time.Duration
	logger  *slog.Logger
}

func newCompleter(config *ai.Config) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var client llms.Model
	switch config.Backend {
	case ai.BackendOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(config.CompletionHost),
			ollama.WithModel(config.CompletionModel),
		)
		if err != nil {
			return nil, err
		}
		client = llm
	default:
		llm, err := openai.New(
			openai.WithBaseURL(config.CompletionHost),
			openai.WithToken(config.Token()),
			openai.WithModel(config.CompletionModel),
		)
		if err != nil {
			return nil, err
		}
		client = llm
	}

	return &Completer{
		client:  client,
		timeout: config.RequestTimeout,
		logger:  slog.Default().With("component", "langchain-completer", "backend", config.Backend),
	}, nil
}

// NewCompleter creates a new completer using the provided configuration.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	return newCompleter(config)
}

// Complete sends prompt as a single user message and returns the reply.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug("generating completion", "length", len(prompt))

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	answer, err := llms.GenerateFromSinglePrompt(ctx, c.client, prompt)
	if err != nil {
		err = ai.Classify("complete", err)
		c.logger.Error("failed to generate completion", "err", err)
		return "", err
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", ai.NewError(ai.KindUnavailable, "complete", errEmptyResponse)
	}
	return answer, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
