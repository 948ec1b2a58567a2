package langchain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/yellowbook/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer emulates the OpenAI-compatible endpoints used here.
func fakeServer(t *testing.T, embedStatus int, vector []float32, answer string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			if embedStatus != http.StatusOK {
				w.WriteHeader(embedStatus)
				_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"rate_limit"}}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"data": []map[string]any{
					{"object": "embedding", "index": 0, "embedding": vector},
				},
				"model": "test-embed",
			})
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "chatcmpl-1",
				"object": "chat.completion",
				"model":  "test-chat",
				"choices": []map[string]any{
					{
						"index":         0,
						"finish_reason": "stop",
						"message":       map[string]any{"role": "assistant", "content": answer},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(host string, dim int) *ai.Config {
	return ai.NewConfig(
		ai.WithHost(host),
		ai.WithEmbeddingModel("test-embed"),
		ai.WithCompletionModel("test-chat"),
		ai.WithDimension(dim),
		ai.WithRequestTimeout(5*time.Second),
	)
}

func TestProvider_EmbedAndComplete(t *testing.T) {
	srv := fakeServer(t, http.StatusOK, []float32{0.1, 0.2, 0.3}, "  Try Luigi's.  ")

	provider, err := NewProvider(testConfig(srv.URL, 3))
	require.NoError(t, err)
	defer provider.Close()

	vec, err := provider.Embedder().EmbedText(context.Background(), "italian\nrestaurant")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)

	answer, err := provider.Completer().Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Try Luigi's.", answer)
}

func TestEmbedder_RateLimitedIsClassified(t *testing.T) {
	srv := fakeServer(t, http.StatusTooManyRequests, nil, "")

	embedder, err := NewEmbedder(testConfig(srv.URL, 3))
	require.NoError(t, err)

	_, err = embedder.EmbedText(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, ai.KindRateLimited, ai.KindOf(err))
	assert.True(t, ai.IsRetryable(err))
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	srv := fakeServer(t, http.StatusOK, []float32{0.1, 0.2}, "")

	embedder, err := NewEmbedder(testConfig(srv.URL, 3))
	require.NoError(t, err)

	_, err = embedder.EmbedText(context.Background(), "anything")
	assert.Equal(t, ai.KindDimensionMismatch, ai.KindOf(err))
	assert.False(t, ai.IsRetryable(err))
}

func TestEmbedder_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	embedder, err := NewEmbedder(testConfig(host, 3))
	require.NoError(t, err)

	_, err = embedder.EmbedText(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, ai.KindConnectionRefused, ai.KindOf(err))
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	cfg := testConfig("http://localhost:1", 3)
	cfg.EmbeddingModel = ""
	_, err := NewProvider(cfg)
	assert.Error(t, err)
}
