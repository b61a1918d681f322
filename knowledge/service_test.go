package knowledge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"horizon_back/authorization"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  []string
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.calls = append(f.calls, taskType)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func testVector() []float32 {
	vector := make([]float32, 768)
	for i := range vector {
		vector[i] = float32(i) / 768
	}
	return vector
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Document{}, &Chunk{}))
	return db
}

func testUser() *authorization.AuthenticatedUser {
	return &authorization.AuthenticatedUser{ID: 7, Email: "guest@example.com"}
}

func TestIngestSuccess(t *testing.T) {
	db := openTestDB(t)
	embedder := &fakeEmbedder{vector: testVector()}
	service, err := NewService(db, embedder, nil)
	require.NoError(t, err)

	doc, err := service.Ingest(context.Background(), testUser(), IngestInput{
		Title:    "pool.txt",
		Content:  "Pool hours are 7am-10pm",
		FileType: "txt",
		FileSize: 23,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, doc.Status)
	assert.Equal(t, []string{TaskTypeDocument}, embedder.calls)

	var stored Document
	require.NoError(t, db.Take(&stored, doc.ID).Error)
	assert.Equal(t, StatusActive, stored.Status)

	var chunk Chunk
	require.NoError(t, db.Where("document_id = ?", doc.ID).Take(&chunk).Error)
	assert.Equal(t, "Pool hours are 7am-10pm", chunk.Content)
	assert.Equal(t, 0, chunk.ChunkIndex)
	assert.Equal(t, uint64(7), chunk.UserID)
	assert.NotEmpty(t, chunk.Embedding)
	assert.Contains(t, string(chunk.Metadata), "pool.txt")
}

func TestIngestEmbeddingFailureMarksError(t *testing.T) {
	db := openTestDB(t)
	embedder := &fakeEmbedder{err: fmt.Errorf("%w: provider unreachable", ErrEmbedding)}
	service, err := NewService(db, embedder, nil)
	require.NoError(t, err)

	_, err = service.Ingest(context.Background(), testUser(), IngestInput{
		Title:   "pool.txt",
		Content: "Pool hours are 7am-10pm",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbedding))

	var stored Document
	require.NoError(t, db.Take(&stored).Error)
	assert.Equal(t, StatusError, stored.Status)

	var chunkCount int64
	require.NoError(t, db.Model(&Chunk{}).Count(&chunkCount).Error)
	assert.Zero(t, chunkCount)
}

func TestIngestRequiresUser(t *testing.T) {
	db := openTestDB(t)
	service, err := NewService(db, &fakeEmbedder{vector: testVector()}, nil)
	require.NoError(t, err)

	_, err = service.Ingest(context.Background(), nil, IngestInput{Title: "a", Content: "b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthRequired))
}

func TestIngestTruncatesEmbeddingInputOnly(t *testing.T) {
	db := openTestDB(t)

	long := make([]byte, embedCharLimit+500)
	for i := range long {
		long[i] = 'a'
	}

	var embeddedLen int
	embedder := &recordingEmbedder{vector: testVector(), onEmbed: func(text string) { embeddedLen = len([]rune(text)) }}
	service, err := NewService(db, embedder, nil)
	require.NoError(t, err)

	doc, err := service.Ingest(context.Background(), testUser(), IngestInput{Title: "big.txt", Content: string(long)})
	require.NoError(t, err)
	assert.Equal(t, embedCharLimit, embeddedLen)

	var chunk Chunk
	require.NoError(t, db.Where("document_id = ?", doc.ID).Take(&chunk).Error)
	assert.Len(t, chunk.Content, len(long))
}

type recordingEmbedder struct {
	vector  []float32
	onEmbed func(text string)
}

func (r *recordingEmbedder) EmbedText(ctx context.Context, text string, taskType string) ([]float32, error) {
	if r.onEmbed != nil {
		r.onEmbed(text)
	}
	return r.vector, nil
}

func TestIngestFileUnsupportedTypeCreatesNoRecord(t *testing.T) {
	db := openTestDB(t)
	service, err := NewService(db, &fakeEmbedder{vector: testVector()}, nil)
	require.NoError(t, err)

	_, err = service.IngestFile(context.Background(), testUser(), FileUpload{
		Filename:    "photo.png",
		ContentType: "image/png",
		Data:        []byte{0x89, 0x50},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFileType))

	var count int64
	require.NoError(t, db.Model(&Document{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIngestFileEmptyContentCreatesNoRecord(t *testing.T) {
	db := openTestDB(t)
	embedder := &fakeEmbedder{vector: testVector()}
	service, err := NewService(db, embedder, nil)
	require.NoError(t, err)

	_, err = service.IngestFile(context.Background(), testUser(), FileUpload{
		Filename:    "blank.txt",
		ContentType: "text/plain",
		Data:        []byte("   \n"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyContent))
	assert.Empty(t, embedder.calls)

	var count int64
	require.NoError(t, db.Model(&Document{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIngestFilePlainText(t *testing.T) {
	db := openTestDB(t)
	service, err := NewService(db, &fakeEmbedder{vector: testVector()}, nil)
	require.NoError(t, err)

	doc, err := service.IngestFile(context.Background(), testUser(), FileUpload{
		Filename:    "spa.txt",
		ContentType: "text/plain; charset=utf-8",
		Size:        20,
		Data:        []byte("Spa opens at 9am"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, doc.Status)
	assert.Equal(t, "txt", doc.FileType)
	assert.Equal(t, "spa.txt", doc.Filename)
}

func TestDeleteDocumentCascadesChunks(t *testing.T) {
	db := openTestDB(t)
	service, err := NewService(db, &fakeEmbedder{vector: testVector()}, nil)
	require.NoError(t, err)

	doc, err := service.Ingest(context.Background(), testUser(), IngestInput{Title: "a.txt", Content: "alpha"})
	require.NoError(t, err)

	require.NoError(t, service.DeleteDocument(context.Background(), 7, doc.ID))

	var docCount, chunkCount int64
	require.NoError(t, db.Model(&Document{}).Count(&docCount).Error)
	require.NoError(t, db.Model(&Chunk{}).Count(&chunkCount).Error)
	assert.Zero(t, docCount)
	assert.Zero(t, chunkCount)
}

func TestDeleteDocumentScopedToOwner(t *testing.T) {
	db := openTestDB(t)
	service, err := NewService(db, &fakeEmbedder{vector: testVector()}, nil)
	require.NoError(t, err)

	doc, err := service.Ingest(context.Background(), testUser(), IngestInput{Title: "a.txt", Content: "alpha"})
	require.NoError(t, err)

	err = service.DeleteDocument(context.Background(), 99, doc.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestListDocumentsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	service, err := NewService(db, &fakeEmbedder{vector: testVector()}, nil)
	require.NoError(t, err)

	first, err := service.Ingest(context.Background(), testUser(), IngestInput{Title: "old.txt", Content: "old"})
	require.NoError(t, err)
	second, err := service.Ingest(context.Background(), testUser(), IngestInput{Title: "new.txt", Content: "new"})
	require.NoError(t, err)

	// Force distinct creation timestamps regardless of clock resolution.
	require.NoError(t, db.Model(&Document{}).Where("id = ?", first.ID).
		UpdateColumn("created_at", time.Now().UTC().Add(-time.Hour)).Error)
	require.NoError(t, db.Model(&Document{}).Where("id = ?", second.ID).
		UpdateColumn("created_at", time.Now().UTC()).Error)

	docs, err := service.ListDocuments(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new.txt", docs[0].Filename)
	assert.Equal(t, "old.txt", docs[1].Filename)
}
