package knowledge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractUploadPlainText(t *testing.T) {
	content, fileType, err := ExtractUpload("notes.txt", "text/plain", []byte("Pool hours are 7am-10pm\r\nSpa opens at 9am"))
	require.NoError(t, err)
	assert.Equal(t, "txt", fileType)
	assert.Equal(t, "Pool hours are 7am-10pm\nSpa opens at 9am", content)
}

func TestExtractUploadHonorsCharsetParameter(t *testing.T) {
	content, fileType, err := ExtractUpload("notes.txt", "text/plain; charset=utf-8", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "txt", fileType)
	assert.Equal(t, "hello", content)
}

func TestExtractUploadUnsupportedType(t *testing.T) {
	_, _, err := ExtractUpload("photo.png", "image/png", []byte{0x89, 0x50, 0x4e, 0x47})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFileType))
}

func TestExtractUploadEmptyContent(t *testing.T) {
	_, _, err := ExtractUpload("blank.txt", "text/plain", []byte("   \n\t  "))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyContent))
}

func TestExtractUploadCorruptPDF(t *testing.T) {
	_, _, err := ExtractUpload("broken.pdf", "application/pdf", []byte("not a pdf"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnsupportedFileType))
}
