package chat

import (
	"time"

	"gorm.io/datatypes"
)

// Message roles. The hosted model protocol only knows these two; anything
// else is coerced to RoleUser during history sanitation.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

type Conversation struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	UserID    uint64    `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"size:64;not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message ordering within a conversation follows server-assigned creation
// timestamps; concurrent turns interleave by insert time, not client order.
type Message struct {
	ID             uint64    `gorm:"primaryKey" json:"id"`
	ConversationID uint64    `gorm:"not null;index" json:"conversation_id"`
	UserID         uint64    `gorm:"not null;index" json:"user_id"`
	Role           string    `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Message) TableName() string {
	return "chat_history"
}

// AnalyticsRecord logs one query/response pair. Writes are best-effort and
// never block a chat turn.
type AnalyticsRecord struct {
	ID        uint64         `gorm:"primaryKey" json:"id"`
	UserID    *uint64        `gorm:"index" json:"user_id,omitempty"`
	Query     string         `gorm:"type:text;not null" json:"query"`
	Response  string         `gorm:"type:text;not null" json:"response"`
	Metadata  datatypes.JSON `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (AnalyticsRecord) TableName() string {
	return "analytics"
}
