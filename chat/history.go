package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	defaultConversationTitle = "New Conversation"
	titleMaxChars            = 30
)

// Sidebar grouping labels, in display order.
var groupLabels = []string{"Today", "Yesterday", "Previous 7 Days", "Older"}

// ConversationGroup is one recency bucket of the grouped listing.
type ConversationGroup struct {
	Label         string         `json:"label"`
	Conversations []Conversation `json:"conversations"`
}

// History persists and reloads ordered message sequences per conversation.
type History struct {
	db *gorm.DB
}

func NewHistory(db *gorm.DB) (*History, error) {
	if db == nil {
		return nil, errors.New("chat: database connection is required")
	}
	return &History{db: db}, nil
}

func (h *History) AutoMigrate() error {
	return h.db.AutoMigrate(&Conversation{}, &Message{}, &AnalyticsRecord{})
}

// DeriveTitle builds a conversation title from the first user message: the
// first 30 characters plus an ellipsis marker when longer, the message
// unchanged otherwise.
func DeriveTitle(firstMessage string) string {
	trimmed := strings.TrimSpace(firstMessage)
	if trimmed == "" {
		return defaultConversationTitle
	}
	runes := []rune(trimmed)
	if len(runes) <= titleMaxChars {
		return trimmed
	}
	return string(runes[:titleMaxChars]) + "..."
}

func (h *History) CreateConversation(ctx context.Context, userID uint64, title string) (*Conversation, error) {
	if userID == 0 {
		return nil, errors.New("chat: user id is required")
	}
	if strings.TrimSpace(title) == "" {
		title = defaultConversationTitle
	}

	conv := Conversation{UserID: userID, Title: title}
	if err := h.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recently updated
// first.
func (h *History) ListConversations(ctx context.Context, userID uint64) ([]Conversation, error) {
	var convs []Conversation
	if err := h.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

// GroupConversations partitions conversations into Today, Yesterday,
// Previous 7 Days and Older buckets. Boundaries are local midnights computed
// once from now; input order is preserved within each bucket.
func GroupConversations(convs []Conversation, now time.Time) []ConversationGroup {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)
	lastWeek := today.AddDate(0, 0, -7)

	buckets := make(map[string][]Conversation, len(groupLabels))
	for _, conv := range convs {
		updated := conv.UpdatedAt.In(now.Location())
		var label string
		switch {
		case !updated.Before(today):
			label = "Today"
		case !updated.Before(yesterday):
			label = "Yesterday"
		case !updated.Before(lastWeek):
			label = "Previous 7 Days"
		default:
			label = "Older"
		}
		buckets[label] = append(buckets[label], conv)
	}

	groups := make([]ConversationGroup, 0, len(groupLabels))
	for _, label := range groupLabels {
		groups = append(groups, ConversationGroup{Label: label, Conversations: buckets[label]})
	}
	return groups
}

// Messages returns the conversation's messages in creation order.
func (h *History) Messages(ctx context.Context, conversationID uint64) ([]Message, error) {
	var messages []Message
	if err := h.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// AppendMessage stores one turn and refreshes the conversation's updated_at
// so recency grouping stays accurate.
func (h *History) AppendMessage(ctx context.Context, conversationID uint64, userID uint64, role string, content string) error {
	if role != RoleUser && role != RoleModel {
		return errors.New("chat: role must be user or model")
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("chat: content cannot be empty")
	}

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg := Message{
			ConversationID: conversationID,
			UserID:         userID,
			Role:           role,
			Content:        content,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", time.Now().UTC()).Error
	})
}

// DeleteConversation removes a conversation and its messages.
func (h *History) DeleteConversation(ctx context.Context, userID uint64, conversationID uint64) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv Conversation
		if err := tx.Where("id = ? AND user_id = ?", conversationID, userID).Take(&conv).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Conversation{}, conversationID).Error
	})
}

// RenameConversation updates the title and touches updated_at.
func (h *History) RenameConversation(ctx context.Context, userID uint64, conversationID uint64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("chat: title cannot be empty")
	}

	result := h.db.WithContext(ctx).
		Model(&Conversation{}).
		Where("id = ? AND user_id = ?", conversationID, userID).
		Updates(map[string]interface{}{
			"title":      title,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
