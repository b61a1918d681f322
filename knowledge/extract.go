package knowledge

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MIME types accepted by the ingestion pipeline. This is a core contract:
// anything else is rejected before a document record exists.
const (
	mimePDF       = "application/pdf"
	mimePlainText = "text/plain"
)

// ExtractUpload turns an uploaded file into plain text. PDF pages are
// extracted one by one and joined with newlines; plain text passes through.
// Unsupported MIME types and blank extractions fail before any embedding or
// storage work happens.
func ExtractUpload(filename string, contentType string, data []byte) (content string, fileType string, err error) {
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	switch mediaType {
	case mimePDF:
		content, err = extractPDFText(data)
		if err != nil {
			return "", "", err
		}
		fileType = "pdf"
	case mimePlainText:
		content = normalizeNewlines(string(data))
		fileType = "txt"
	default:
		return "", "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedFileType, filename, contentType)
	}

	if strings.TrimSpace(content) == "" {
		return "", "", fmt.Errorf("%w in %q", ErrEmptyContent, filename)
	}
	return content, fileType, nil
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("knowledge: open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("knowledge: extract PDF page %d: %w", i, err)
		}
		buf.WriteString(text)
		buf.WriteByte('\n')
	}
	return normalizeNewlines(buf.String()), nil
}

func normalizeNewlines(value string) string {
	if value == "" {
		return ""
	}
	replaced := strings.ReplaceAll(value, "\r\n", "\n")
	return strings.ReplaceAll(replaced, "\r", "\n")
}
