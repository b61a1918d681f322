package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) Embedder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv("EMBEDDING_API_KEY", "test-key")
	t.Setenv("EMBEDDING_BASE_URL", server.URL)
	t.Setenv("EMBEDDING_MODEL_ID", "gemini-embedding-001")
	t.Setenv("EMBEDDING_VECTOR_DIM", "")

	embedder, err := NewHTTPEmbedderFromEnv()
	require.NoError(t, err)
	return embedder
}

func TestEmbedTextReturns768Components(t *testing.T) {
	var gotTaskType string
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-embedding-001:embedContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req embedContentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotTaskType = req.TaskType
		assert.Equal(t, 768, req.OutputDimensionality)

		values := make([]float64, 768)
		for i := range values {
			values[i] = float64(i) / 768
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": map[string]interface{}{"values": values},
		})
	})

	vector, err := embedder.EmbedText(context.Background(), "What are the pool hours?", TaskTypeQuery)
	require.NoError(t, err)
	assert.Len(t, vector, 768)
	assert.Equal(t, TaskTypeQuery, gotTaskType)
}

func TestEmbedTextRejectsEmptyInput(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider must not be called for empty input")
	})

	_, err := embedder.EmbedText(context.Background(), "   ", TaskTypeDocument)
	require.Error(t, err)
}

func TestEmbedTextWrongDimension(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": map[string]interface{}{"values": []float64{0.1, 0.2, 0.3}},
		})
	})

	_, err := embedder.EmbedText(context.Background(), "hello", TaskTypeDocument)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbedding))
}

func TestEmbedTextProviderFailure(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := embedder.EmbedText(context.Background(), "hello", TaskTypeDocument)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbedding))
}

func TestNewHTTPEmbedderFromEnvRequiresKey(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "")
	_, err := NewHTTPEmbedderFromEnv()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbedding))
}
