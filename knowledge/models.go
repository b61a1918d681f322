package knowledge

import (
	"time"

	"gorm.io/datatypes"
)

// Document lifecycle statuses. A document becomes StatusActive only after at
// least one chunk with an embedding has been persisted; failures move it to
// StatusError and its chunks are never served.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusIndexed    = "indexed"
	StatusActive     = "active"
	StatusError      = "error"
)

func validStatus(value string) bool {
	switch value {
	case StatusPending, StatusProcessing, StatusIndexed, StatusActive, StatusError:
		return true
	default:
		return false
	}
}

type Document struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	UserID    uint64    `gorm:"not null;index" json:"user_id"`
	Filename  string    `gorm:"size:255;not null" json:"filename"`
	Title     *string   `gorm:"size:255" json:"title,omitempty"`
	Status    string    `gorm:"size:16;not null;default:'pending'" json:"status"`
	FileType  string    `gorm:"size:16;not null;default:'txt'" json:"file_type"`
	FileSize  int64     `gorm:"not null;default:0" json:"file_size"`
	SourceURL *string   `gorm:"size:512" json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

// Chunk is one retrievable unit of text. The embedding is stored as a JSON
// array of 768 floats; similarity comparison happens inside the store's
// match_documents function, never in this process.
type Chunk struct {
	ID         uint64         `gorm:"primaryKey" json:"id"`
	DocumentID uint64         `gorm:"not null;index" json:"document_id"`
	UserID     uint64         `gorm:"not null;index" json:"user_id"`
	Content    string         `gorm:"type:text;not null" json:"content"`
	ChunkIndex int            `gorm:"not null;default:0" json:"chunk_index"`
	Embedding  datatypes.JSON `gorm:"type:json" json:"embedding,omitempty"`
	Metadata   datatypes.JSON `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (Chunk) TableName() string {
	return "document_chunks"
}

// MatchedChunk is a chunk row returned by the similarity search, carrying the
// [0,1] cosine-style score assigned by the store.
type MatchedChunk struct {
	ID         uint64         `json:"id"`
	DocumentID uint64         `json:"document_id"`
	UserID     uint64         `json:"user_id"`
	Content    string         `json:"content"`
	ChunkIndex int            `json:"chunk_index"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
	Similarity float64        `json:"similarity"`
}
