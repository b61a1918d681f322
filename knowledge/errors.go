package knowledge

import "errors"

// Failure classes for ingestion and retrieval. Operations wrap these with
// fmt.Errorf("%w: ...") so callers can branch with errors.Is while still
// logging the full cause.
var (
	// ErrAuthRequired is returned when an operation is invoked without an
	// authenticated user context.
	ErrAuthRequired = errors.New("knowledge: authentication required")

	// ErrEmbedding covers an unreachable embedding provider, a missing API
	// key, or malformed provider output. Fatal to the calling operation.
	ErrEmbedding = errors.New("knowledge: embedding failed")

	// ErrUnsupportedFileType is returned for uploads that are neither PDF nor
	// plain text, before any document record or network call is made.
	ErrUnsupportedFileType = errors.New("knowledge: unsupported file type")

	// ErrEmptyContent is returned when extracted text is blank after
	// trimming, before any embedding work occurs.
	ErrEmptyContent = errors.New("knowledge: no text content found")

	// ErrStorageWrite covers document or chunk persistence failures.
	ErrStorageWrite = errors.New("knowledge: storage write failed")
)
