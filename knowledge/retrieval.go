package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

const (
	defaultTopK           = 3
	defaultMatchThreshold = 0.3
)

// SimilaritySearcher is the narrow RPC surface of the store's vector search.
// A nil userID requests the unscoped variant of match_documents.
type SimilaritySearcher interface {
	MatchChunks(ctx context.Context, queryEmbedding []float32, threshold float64, count int, userID *uint64) ([]MatchedChunk, error)
}

type storeSearcher struct {
	db *gorm.DB
}

// NewStoreSearcher returns a SimilaritySearcher backed by the relational
// store's match_documents function.
func NewStoreSearcher(db *gorm.DB) (SimilaritySearcher, error) {
	if db == nil {
		return nil, errors.New("knowledge: database connection is required")
	}
	return &storeSearcher{db: db}, nil
}

func (s *storeSearcher) MatchChunks(ctx context.Context, queryEmbedding []float32, threshold float64, count int, userID *uint64) ([]MatchedChunk, error) {
	if len(queryEmbedding) == 0 {
		return nil, errors.New("knowledge: query embedding cannot be empty")
	}
	if count <= 0 {
		count = defaultTopK
	}

	literal := vectorLiteral(queryEmbedding)

	var rows []MatchedChunk
	var err error
	if userID != nil {
		err = s.db.WithContext(ctx).
			Raw("SELECT id, document_id, user_id, content, chunk_index, metadata, similarity FROM match_documents(?::vector, ?, ?, ?)",
				literal, threshold, count, *userID).
			Scan(&rows).Error
	} else {
		err = s.db.WithContext(ctx).
			Raw("SELECT id, document_id, user_id, content, chunk_index, metadata, similarity FROM match_documents(?::vector, ?, ?)",
				literal, threshold, count).
			Scan(&rows).Error
	}
	if err != nil {
		return nil, fmt.Errorf("knowledge: match_documents: %w", err)
	}
	return rows, nil
}

// vectorLiteral renders the embedding as a pgvector literal, e.g. "[0.1,0.2]".
func vectorLiteral(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, value := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(value), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// Retriever asks the store for the chunks most similar to a query embedding.
// Retrieval is best-effort context for a chat turn, never a hard dependency:
// when the user-scoped call errors it retries once without the scope filter,
// and when that errors too it returns an empty result.
type Retriever struct {
	searcher  SimilaritySearcher
	topK      int
	threshold float64
}

// NewRetriever builds a retriever with the default topK of 3 and similarity
// threshold of 0.3.
func NewRetriever(searcher SimilaritySearcher) (*Retriever, error) {
	if searcher == nil {
		return nil, errors.New("knowledge: similarity searcher is required")
	}
	return &Retriever{searcher: searcher, topK: defaultTopK, threshold: defaultMatchThreshold}, nil
}

// Retrieve returns at most topK chunks scoped to the user, descending by
// similarity, every score at or above the threshold. It never returns an
// error.
func (r *Retriever) Retrieve(ctx context.Context, queryEmbedding []float32, userID uint64) []MatchedChunk {
	rows, err := r.searcher.MatchChunks(ctx, queryEmbedding, r.threshold, r.topK, &userID)
	if err != nil {
		// The scoped variant may not exist yet on older store schemas.
		// Falling back without the user filter can surface other users'
		// chunks; log the downgrade so operators can see it.
		log.Printf("knowledge: scoped similarity search failed, retrying unscoped: %v", err)
		rows, err = r.searcher.MatchChunks(ctx, queryEmbedding, r.threshold, r.topK, nil)
		if err != nil {
			log.Printf("knowledge: unscoped similarity search failed: %v", err)
			return nil
		}
	}

	filtered := make([]MatchedChunk, 0, len(rows))
	for _, row := range rows {
		if row.Similarity >= r.threshold {
			filtered = append(filtered, row)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Similarity > filtered[j].Similarity
	})
	if len(filtered) > r.topK {
		filtered = filtered[:r.topK]
	}
	return filtered
}
