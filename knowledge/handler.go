package knowledge

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"horizon_back/authorization"
)

type Module struct {
	service *Service
}

// RegisterRoutes mounts the knowledge endpoints under /knowledge. All routes
// require an authenticated user.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, service *Service) (*Module, error) {
	if service == nil {
		return nil, errors.New("knowledge: service is required")
	}
	if guard == nil {
		return nil, errors.New("knowledge: guard is required")
	}

	if err := service.AutoMigrate(); err != nil {
		return nil, err
	}

	module := &Module{service: service}

	group := router.Group("/knowledge", guard.RequireAuthenticated())
	group.GET("/documents", module.handleListDocuments)
	group.POST("/documents", module.handleCreateDocument)
	group.POST("/documents/upload", module.handleUploadDocument)
	group.DELETE("/documents/:id", module.handleDeleteDocument)

	return module, nil
}

func (m *Module) handleListDocuments(c *gin.Context) {
	user, err := authorization.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	docs, err := m.service.ListDocuments(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load documents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

type createDocumentRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (m *Module) handleCreateDocument(c *gin.Context) {
	user, err := authorization.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and content are required"})
		return
	}

	doc, err := m.service.Ingest(c.Request.Context(), user, IngestInput{
		Title:    req.Title,
		Content:  req.Content,
		FileType: "txt",
		FileSize: int64(len(req.Content)),
	})
	if err != nil {
		respondIngestError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"document": doc})
}

func (m *Module) handleUploadDocument(c *gin.Context) {
	user, err := authorization.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if strings.TrimSpace(contentType) == "" {
		contentType = http.DetectContentType(data)
	}

	doc, err := m.service.IngestFile(c.Request.Context(), user, FileUpload{
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		Size:        fileHeader.Size,
		Data:        data,
	})
	if err != nil {
		respondIngestError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"document": doc})
}

func (m *Module) handleDeleteDocument(c *gin.Context) {
	user, err := authorization.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	docID, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || docID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	if err := m.service.DeleteDocument(c.Request.Context(), user.ID, docID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": docID})
}

func respondIngestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.Is(err, ErrUnsupportedFileType), errors.Is(err, ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrEmbedding):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
