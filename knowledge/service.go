package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"horizon_back/authorization"
	"horizon_back/storage"
)

// embedCharLimit caps the text sent to the embedding provider. The chunk row
// keeps the full, untruncated content.
const embedCharLimit = 30000

// Service runs the document ingestion pipeline: create a processing record,
// embed the content, persist the chunk, then promote the document to active.
// Every dependency is injected so tests can substitute fakes.
type Service struct {
	db       *gorm.DB
	embedder Embedder
	archive  *storage.SourceArchive
}

// IngestInput carries a raw-text ingestion request.
type IngestInput struct {
	Title     string
	Content   string
	FileType  string
	FileSize  int64
	SourceURL *string
}

// FileUpload carries the bytes and declared metadata of an uploaded file.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// NewService wires the ingestion pipeline. The archive may be nil.
func NewService(db *gorm.DB, embedder Embedder, archive *storage.SourceArchive) (*Service, error) {
	if db == nil {
		return nil, errors.New("knowledge: database connection is required")
	}
	if embedder == nil {
		return nil, errors.New("knowledge: embedder is required")
	}
	return &Service{db: db, embedder: embedder, archive: archive}, nil
}

func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&Document{}, &Chunk{})
}

// Ingest persists one document and its single embedded chunk. The document
// row is created with status processing before any expensive work so a crash
// mid-pipeline leaves a visible record; embedding or chunk failures demote it
// to status error.
func (s *Service) Ingest(ctx context.Context, user *authorization.AuthenticatedUser, input IngestInput) (*Document, error) {
	if user == nil || user.ID == 0 {
		return nil, ErrAuthRequired
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errors.New("knowledge: title is required")
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, fmt.Errorf("%w in %q", ErrEmptyContent, title)
	}

	fileType := strings.ToLower(strings.TrimSpace(input.FileType))
	if fileType == "" {
		fileType = "txt"
	}

	doc := Document{
		UserID:    user.ID,
		Filename:  title,
		Title:     &title,
		Status:    StatusProcessing,
		FileType:  fileType,
		FileSize:  input.FileSize,
		SourceURL: input.SourceURL,
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, fmt.Errorf("%w: create document: %v", ErrStorageWrite, err)
	}

	embedding, err := s.embedder.EmbedText(ctx, truncateRunes(input.Content, embedCharLimit), TaskTypeDocument)
	if err != nil {
		s.markStatus(ctx, doc.ID, StatusError)
		if errors.Is(err, ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	chunk := Chunk{
		DocumentID: doc.ID,
		UserID:     user.ID,
		Content:    input.Content,
		ChunkIndex: 0,
		Embedding:  vectorToJSON(embedding),
		Metadata:   chunkMetadata(title),
	}
	if err := s.db.WithContext(ctx).Create(&chunk).Error; err != nil {
		s.markStatus(ctx, doc.ID, StatusError)
		return nil, fmt.Errorf("%w: create chunk: %v", ErrStorageWrite, err)
	}

	if err := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ?", doc.ID).
		Update("status", StatusActive).Error; err != nil {
		return nil, fmt.Errorf("%w: activate document: %v", ErrStorageWrite, err)
	}

	doc.Status = StatusActive
	return &doc, nil
}

// IngestFile extracts text from an uploaded file and runs the standard
// pipeline. Extraction failures happen before any record or network call.
// The raw upload is archived best-effort when an archive is configured.
func (s *Service) IngestFile(ctx context.Context, user *authorization.AuthenticatedUser, upload FileUpload) (*Document, error) {
	if user == nil || user.ID == 0 {
		return nil, ErrAuthRequired
	}

	content, fileType, err := ExtractUpload(upload.Filename, upload.ContentType, upload.Data)
	if err != nil {
		return nil, err
	}

	var sourceURL *string
	if s.archive != nil {
		url, archiveErr := s.archive.Store(ctx, user.ID, upload.Filename, upload.ContentType, upload.Data)
		if archiveErr != nil {
			log.Printf("knowledge: archive source file %q failed: %v", upload.Filename, archiveErr)
		} else {
			sourceURL = &url
		}
	}

	return s.Ingest(ctx, user, IngestInput{
		Title:     upload.Filename,
		Content:   content,
		FileType:  fileType,
		FileSize:  upload.Size,
		SourceURL: sourceURL,
	})
}

// ListDocuments returns the user's documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, userID uint64) ([]Document, error) {
	var docs []Document
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteDocument removes a document and all of its chunks in one transaction.
func (s *Service) DeleteDocument(ctx context.Context, userID uint64, docID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc Document
		if err := tx.Where("id = ? AND user_id = ?", docID, userID).Take(&doc).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", docID).Delete(&Chunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Document{}, docID).Error
	})
}

func (s *Service) markStatus(ctx context.Context, docID uint64, status string) {
	if !validStatus(status) {
		status = StatusError
	}
	if err := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ?", docID).
		Update("status", status).Error; err != nil {
		log.Printf("knowledge: mark document %d %s failed: %v", docID, status, err)
	}
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

func vectorToJSON(vector []float32) datatypes.JSON {
	raw, err := json.Marshal(vector)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}

func chunkMetadata(filename string) datatypes.JSON {
	raw, err := json.Marshal(map[string]string{"filename": filename})
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}
