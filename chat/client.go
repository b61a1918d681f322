package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModelID = "gemini-flash-latest"
)

// Turn is a single prior exchange passed into a chat session.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ChatModel starts grounded chat sessions against the hosted model.
type ChatModel interface {
	StartChat(systemInstruction string, history []Turn) ChatSession
}

// ChatSession sends the newest turn and returns the model's text.
type ChatSession interface {
	SendMessage(ctx context.Context, text string) (string, error)
}

// Client wraps the HTTP calls to the hosted generateContent API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
}

// NewClientFromEnv constructs a Client using environment variables.
//
// Expected variables:
//   - LLM_API_KEY: required API key for the provider
//   - LLM_BASE_URL: optional override for the API base URL
//   - LLM_MODEL_ID: optional override for the target model
func NewClientFromEnv() (*Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("chat: LLM_API_KEY environment variable is required")
	}

	baseURL := strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("chat: invalid base URL %q", baseURL)
	}

	modelID := strings.TrimSpace(os.Getenv("LLM_MODEL_ID"))
	if modelID == "" {
		modelID = defaultModelID
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		modelID:    modelID,
	}, nil
}

type generateContentPart struct {
	Text string `json:"text"`
}

type generateContentEntry struct {
	Role  string                `json:"role,omitempty"`
	Parts []generateContentPart `json:"parts"`
}

type generateContentRequest struct {
	SystemInstruction *generateContentEntry  `json:"systemInstruction,omitempty"`
	Contents          []generateContentEntry `json:"contents"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generateContentPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type clientSession struct {
	client  *Client
	system  string
	history []Turn
}

// StartChat seeds a session with the system instruction and prior turns.
// The session is not safe for concurrent use; each chat turn builds its own.
func (c *Client) StartChat(systemInstruction string, history []Turn) ChatSession {
	seeded := make([]Turn, len(history))
	copy(seeded, history)
	return &clientSession{client: c, system: systemInstruction, history: seeded}
}

func (s *clientSession) SendMessage(ctx context.Context, text string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("chat: session is not configured")
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", errors.New("chat: message cannot be empty")
	}

	payload := generateContentRequest{
		Contents: make([]generateContentEntry, 0, len(s.history)+1),
	}
	if system := strings.TrimSpace(s.system); system != "" {
		payload.SystemInstruction = &generateContentEntry{
			Parts: []generateContentPart{{Text: system}},
		}
	}
	for _, turn := range s.history {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		payload.Contents = append(payload.Contents, generateContentEntry{
			Role:  turn.Role,
			Parts: []generateContentPart{{Text: turn.Text}},
		})
	}
	payload.Contents = append(payload.Contents, generateContentEntry{
		Role:  RoleUser,
		Parts: []generateContentPart{{Text: trimmed}},
	})

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return "", fmt.Errorf("chat: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", s.client.baseURL, s.client.modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("chat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.client.apiKey)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("chat: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("chat: decode response: %w", err)
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("chat: provider returned no candidates")
	}

	var reply strings.Builder
	for _, part := range decoded.Candidates[0].Content.Parts {
		reply.WriteString(part.Text)
	}

	// Record the exchange so a reused session keeps its transcript.
	s.history = append(s.history,
		Turn{Role: RoleUser, Text: trimmed},
		Turn{Role: RoleModel, Text: reply.String()},
	)

	return reply.String(), nil
}
