package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Embedding task types. Document and query embeddings share one vector space
// but the provider treats them asymmetrically, so the intent travels with
// every request.
const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

const defaultVectorDim = 768

// Embedder converts text into a fixed-length vector tagged with an intent.
type Embedder interface {
	EmbedText(ctx context.Context, text string, taskType string) ([]float32, error)
}

type httpEmbedder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
	expectDim  int
}

type embedContentRequest struct {
	Content              embedContentPayload `json:"content"`
	TaskType             string              `json:"taskType,omitempty"`
	OutputDimensionality int                 `json:"outputDimensionality,omitempty"`
}

type embedContentPayload struct {
	Parts []embedContentPart `json:"parts"`
}

type embedContentPart struct {
	Text string `json:"text"`
}

type embedContentResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

// NewHTTPEmbedderFromEnv constructs the embedding client from environment
// variables.
//
// Expected variables:
//   - EMBEDDING_API_KEY: required provider key
//   - EMBEDDING_BASE_URL: optional API base override
//   - EMBEDDING_MODEL_ID: optional model override
//   - EMBEDDING_VECTOR_DIM: optional dimension override (defaults to 768)
func NewHTTPEmbedderFromEnv() (Embedder, error) {
	apiKey := strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("%w: EMBEDDING_API_KEY environment variable is required", ErrEmbedding)
	}

	baseURL := strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("knowledge: invalid embedding base URL %q", baseURL)
	}

	modelID := strings.TrimSpace(os.Getenv("EMBEDDING_MODEL_ID"))
	if modelID == "" {
		modelID = "gemini-embedding-001"
	}

	expectDim := defaultVectorDim
	if raw := strings.TrimSpace(os.Getenv("EMBEDDING_VECTOR_DIM")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			expectDim = parsed
		}
	}

	return &httpEmbedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		modelID:    modelID,
		expectDim:  expectDim,
	}, nil
}

func (e *httpEmbedder) EmbedText(ctx context.Context, text string, taskType string) ([]float32, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: embedder is not configured", ErrEmbedding)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New("knowledge: embedding input cannot be empty")
	}

	payload := embedContentRequest{
		Content:              embedContentPayload{Parts: []embedContentPart{{Text: trimmed}}},
		TaskType:             taskType,
		OutputDimensionality: e.expectDim,
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return nil, fmt.Errorf("knowledge: encode embedding payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:embedContent", e.baseURL, e.modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("knowledge: create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %s: %s", ErrEmbedding, resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded embedContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrEmbedding, err)
	}

	if len(decoded.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: provider returned empty embedding", ErrEmbedding)
	}
	if e.expectDim > 0 && len(decoded.Embedding.Values) != e.expectDim {
		return nil, fmt.Errorf("%w: embedding length %d does not match expected %d", ErrEmbedding, len(decoded.Embedding.Values), e.expectDim)
	}

	vector := make([]float32, 0, len(decoded.Embedding.Values))
	for _, value := range decoded.Embedding.Values {
		vector = append(vector, float32(value))
	}
	return vector, nil
}
