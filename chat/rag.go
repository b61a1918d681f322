package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"horizon_back/authorization"
	"horizon_back/knowledge"
)

// FallbackReply is the only text a caller ever sees when a chat turn fails.
// The tagged cause stays inside TurnResult for logging and tests.
const FallbackReply = "I apologize, I am having trouble connecting to the concierge service right now. Please contact the front desk."

const (
	emptyContextPlaceholder = "No specific information found in knowledge base."
	contextSeparator        = "\n\n---\n\n"
	maxContextChars         = 12000
)

// ErrModel covers hosted-model invocation failures during a chat turn.
var ErrModel = errors.New("chat: model invocation failed")

// ContextRetriever supplies grounding chunks for a query embedding. It is
// best-effort and never fails.
type ContextRetriever interface {
	Retrieve(ctx context.Context, queryEmbedding []float32, userID uint64) []knowledge.MatchedChunk
}

// TurnResult is the outcome of one chat turn. Reply is always usable text:
// the model's answer on success, FallbackReply otherwise. Err tags which step
// failed; it is never surfaced to the end user.
type TurnResult struct {
	Reply string
	Err   error
}

// Generator orchestrates a grounded chat turn: embed the query, retrieve
// context, build the concierge prompt, sanitize history, call the model.
type Generator struct {
	embedder  knowledge.Embedder
	retriever ContextRetriever
	model     ChatModel
}

func NewGenerator(embedder knowledge.Embedder, retriever ContextRetriever, model ChatModel) (*Generator, error) {
	if embedder == nil {
		return nil, errors.New("chat: embedder is required")
	}
	if retriever == nil {
		return nil, errors.New("chat: retriever is required")
	}
	if model == nil {
		return nil, errors.New("chat: chat model is required")
	}
	return &Generator{embedder: embedder, retriever: retriever, model: model}, nil
}

// Respond runs one chat turn. There is no retry: any failure yields the
// fallback reply and the user must resubmit.
func (g *Generator) Respond(ctx context.Context, user *authorization.AuthenticatedUser, query string, priorTurns []Turn) TurnResult {
	if user == nil || user.ID == 0 {
		return failedTurn(knowledge.ErrAuthRequired)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return failedTurn(errors.New("chat: query cannot be empty"))
	}

	queryEmbedding, err := g.embedder.EmbedText(ctx, query, knowledge.TaskTypeQuery)
	if err != nil {
		if !errors.Is(err, knowledge.ErrEmbedding) {
			err = fmt.Errorf("%w: %v", knowledge.ErrEmbedding, err)
		}
		return failedTurn(err)
	}

	chunks := g.retriever.Retrieve(ctx, queryEmbedding, user.ID)
	contextBlock := buildContextBlock(chunks)

	session := g.model.StartChat(systemInstruction(contextBlock), SanitizeHistory(priorTurns))
	reply, err := session.SendMessage(ctx, query)
	if err != nil {
		return failedTurn(fmt.Errorf("%w: %v", ErrModel, err))
	}
	return TurnResult{Reply: reply}
}

func failedTurn(err error) TurnResult {
	log.Printf("chat: turn failed: %v", err)
	return TurnResult{Reply: FallbackReply, Err: err}
}

// buildContextBlock concatenates retrieved chunk contents with a clear
// separator, bounded in size. Empty context renders as an explicit
// placeholder so the grounding prompt stays well-formed.
func buildContextBlock(chunks []knowledge.MatchedChunk) string {
	if len(chunks) == 0 {
		return emptyContextPlaceholder
	}

	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Content) == "" {
			continue
		}
		parts = append(parts, "Content: "+chunk.Content)
	}
	if len(parts) == 0 {
		return emptyContextPlaceholder
	}

	block := strings.Join(parts, contextSeparator)
	if runes := []rune(block); len(runes) > maxContextChars {
		block = string(runes[:maxContextChars])
	}
	return block
}

func systemInstruction(contextBlock string) string {
	var b strings.Builder
	b.WriteString("You are \"Horizon\", the virtual concierge for the Grand Horizon Hotel.\n")
	b.WriteString("You have access to the following Hotel Knowledge Base to answer guest questions.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. ONLY answer based on the provided Knowledge Base.\n")
	b.WriteString("2. If the answer is not in the Knowledge Base, politely suggest they contact the Front Desk at +1 (555) 019-9999.\n")
	b.WriteString("3. Be warm, polite, and sophisticated, typical of a luxury hotel concierge.\n")
	b.WriteString("4. Use emojis occasionally (e.g., \U0001F3E8, \U0001F379, \U0001F334) to feel welcoming.\n")
	b.WriteString("5. Keep answers concise but helpful.\n\n")
	b.WriteString("=== KNOWLEDGE BASE START ===\n")
	b.WriteString(contextBlock)
	b.WriteString("\n=== KNOWLEDGE BASE END ===")
	return b.String()
}

// SanitizeHistory maps prior turns into the model-compatible shape: roles are
// coerced to user/model, empty turns are dropped, and the sequence is trimmed
// so it begins with a user turn (required by the hosted protocol). If no user
// turn exists, the history is empty.
func SanitizeHistory(turns []Turn) []Turn {
	sanitized := make([]Turn, 0, len(turns))
	for _, turn := range turns {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		if role != RoleModel && role != "assistant" {
			role = RoleUser
		} else {
			role = RoleModel
		}
		sanitized = append(sanitized, Turn{Role: role, Text: turn.Text})
	}

	for i, turn := range sanitized {
		if turn.Role == RoleUser {
			return sanitized[i:]
		}
	}
	return nil
}
