package chat

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"horizon_back/authorization"
)

type Module struct {
	db        *gorm.DB
	history   *History
	generator *Generator
}

// RegisterRoutes mounts the chat endpoints under /chat. All routes require an
// authenticated user.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, db *gorm.DB, generator *Generator) (*Module, error) {
	if guard == nil {
		return nil, errors.New("chat: guard is required")
	}
	if generator == nil {
		return nil, errors.New("chat: generator is required")
	}

	history, err := NewHistory(db)
	if err != nil {
		return nil, err
	}
	if err := history.AutoMigrate(); err != nil {
		return nil, err
	}

	module := &Module{db: db, history: history, generator: generator}

	group := router.Group("/chat", guard.RequireAuthenticated())
	group.POST("/messages", module.handleCreateMessage)
	group.GET("/conversations", module.handleListConversations)
	group.GET("/conversations/:id/messages", module.handleConversationMessages)
	group.PATCH("/conversations/:id", module.handleRenameConversation)
	group.DELETE("/conversations/:id", module.handleDeleteConversation)

	return module, nil
}

type createMessageRequest struct {
	ConversationID *uint64 `json:"conversation_id,omitempty"`
	Text           string  `json:"text" binding:"required"`
}

type createMessageResponse struct {
	ConversationID uint64 `json:"conversation_id,omitempty"`
	Reply          string `json:"reply"`
}

// handleCreateMessage runs one chat turn: lazily create the conversation,
// persist the user turn, generate the grounded reply, persist it, log
// analytics, return the reply. Persistence failures degrade to logs; the
// caller always receives a reply.
func (m *Module) handleCreateMessage(c *gin.Context) {
	user, err := authorization.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	text := strings.TrimSpace(req.Text)

	ctx := c.Request.Context()

	var convID uint64
	if req.ConversationID != nil && *req.ConversationID != 0 {
		var conv Conversation
		if err := m.db.WithContext(ctx).
			Where("id = ? AND user_id = ?", *req.ConversationID, user.ID).
			Take(&conv).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		convID = conv.ID
	} else {
		conv, err := m.history.CreateConversation(ctx, user.ID, DeriveTitle(text))
		if err != nil {
			log.Printf("chat: create conversation failed: %v", err)
		} else {
			convID = conv.ID
		}
	}

	var priorTurns []Turn
	if convID != 0 {
		messages, err := m.history.Messages(ctx, convID)
		if err != nil {
			log.Printf("chat: load history for conversation %d failed: %v", convID, err)
		} else {
			priorTurns = make([]Turn, 0, len(messages))
			for _, msg := range messages {
				priorTurns = append(priorTurns, Turn{Role: msg.Role, Text: msg.Content})
			}
		}

		if err := m.history.AppendMessage(ctx, convID, user.ID, RoleUser, text); err != nil {
			log.Printf("chat: user message not saved to history: %v", err)
		}
	}

	result := m.generator.Respond(ctx, user, text, priorTurns)

	if convID != 0 {
		if err := m.history.AppendMessage(ctx, convID, user.ID, RoleModel, result.Reply); err != nil {
			log.Printf("chat: model reply not saved to history: %v", err)
		}
	}

	userID := user.ID
	metadata := map[string]interface{}{"conversation_id": convID}
	if result.Err != nil {
		metadata["degraded"] = true
	}
	LogQueryAnalytics(ctx, m.db, &userID, text, result.Reply, metadata)

	c.JSON(http.StatusOK, createMessageResponse{ConversationID: convID, Reply: result.Reply})
}

func (m *Module) handleListConversations(c *gin.Context) {
	user, err := authorization.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	convs, err := m.history.ListConversations(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": convs,
		"groups":        GroupConversations(convs, time.Now()),
	})
}

func (m *Module) handleConversationMessages(c *gin.Context) {
	user, err := authorization.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	convID, ok := parseConversationID(c)
	if !ok {
		return
	}

	var conv Conversation
	if err := m.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", convID, user.ID).
		Take(&conv).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	messages, err := m.history.Messages(c.Request.Context(), convID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": messages})
}

type renameConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

func (m *Module) handleRenameConversation(c *gin.Context) {
	user, err := authorization.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	convID, ok := parseConversationID(c)
	if !ok {
		return
	}

	var req renameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	if err := m.history.RenameConversation(c.Request.Context(), user.ID, convID, req.Title); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rename conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"renamed": convID})
}

func (m *Module) handleDeleteConversation(c *gin.Context) {
	user, err := authorization.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	convID, ok := parseConversationID(c)
	if !ok {
		return
	}

	if err := m.history.DeleteConversation(c.Request.Context(), user.ID, convID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": convID})
}

func parseConversationID(c *gin.Context) (uint64, bool) {
	convID, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || convID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, false
	}
	return convID, true
}
