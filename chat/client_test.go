package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("LLM_BASE_URL", server.URL)
	t.Setenv("LLM_MODEL_ID", "gemini-flash-latest")

	client, err := NewClientFromEnv()
	require.NoError(t, err)
	return client
}

func TestSendMessageRequestShape(t *testing.T) {
	var got generateContentRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-flash-latest:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "The pool "}, {"text": "opens at 7am."}},
				}},
			},
		})
	})

	session := client.StartChat("You are the concierge.", []Turn{
		{Role: RoleUser, Text: "Where is the gym?"},
		{Role: RoleModel, Text: "Second floor."},
	})

	reply, err := session.SendMessage(context.Background(), "And the pool?")
	require.NoError(t, err)
	assert.Equal(t, "The pool opens at 7am.", reply)

	require.NotNil(t, got.SystemInstruction)
	require.Len(t, got.SystemInstruction.Parts, 1)
	assert.Equal(t, "You are the concierge.", got.SystemInstruction.Parts[0].Text)

	require.Len(t, got.Contents, 3)
	assert.Equal(t, RoleUser, got.Contents[0].Role)
	assert.Equal(t, "Where is the gym?", got.Contents[0].Parts[0].Text)
	assert.Equal(t, RoleModel, got.Contents[1].Role)
	assert.Equal(t, RoleUser, got.Contents[2].Role)
	assert.Equal(t, "And the pool?", got.Contents[2].Parts[0].Text)
}

func TestSendMessageRecordsExchange(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "Certainly."}},
				}},
			},
		})
	})

	session := client.StartChat("", nil)
	_, err := session.SendMessage(context.Background(), "first question")
	require.NoError(t, err)

	internal, ok := session.(*clientSession)
	require.True(t, ok)
	require.Len(t, internal.history, 2)
	assert.Equal(t, Turn{Role: RoleUser, Text: "first question"}, internal.history[0])
	assert.Equal(t, Turn{Role: RoleModel, Text: "Certainly."}, internal.history[1])
}

func TestSendMessageProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	session := client.StartChat("", nil)
	_, err := session.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSendMessageNoCandidates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
	})

	session := client.StartChat("", nil)
	_, err := session.SendMessage(context.Background(), "hello")
	require.Error(t, err)
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider must not be called for empty input")
	})

	session := client.StartChat("", nil)
	_, err := session.SendMessage(context.Background(), "   ")
	require.Error(t, err)
}

func TestNewClientFromEnvRequiresKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	_, err := NewClientFromEnv()
	require.Error(t, err)
}
