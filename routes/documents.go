package routes

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"rag-document-platform/internal/logger"
	"rag-document-platform/middleware"
	"rag-document-platform/models"
	"rag-document-platform/services"
	"rag-document-platform/utils"
)

// DocumentHandler serves the document API for the authenticated user.
type DocumentHandler struct {
	documents   *services.DocumentService
	query       *services.QueryService
	maxFileSize int64
}

func NewDocumentHandler(documents *services.DocumentService, query *services.QueryService, maxFileSize int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, query: query, maxFileSize: maxFileSize}
}

// Register mounts the document routes on rg. Authentication is applied by
// the caller.
func (h *DocumentHandler) Register(rg *gin.RouterGroup) {
	docs := rg.Group("/documents")
	docs.POST("/upload", middleware.RequestSizeLimit(h.maxFileSize), h.Upload)
	docs.GET("", h.List)
	docs.GET("/:id", h.Get)
	docs.GET("/:id/processing_status", h.Status)
	docs.GET("/:id/query", h.Query)
	docs.POST("/:id/query", h.Query)
	docs.POST("/:id/reingest", h.Reingest)
	docs.DELETE("/:id", h.Delete)
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondWithBadRequest(c, "file_too_large", "File size exceeds maximum limit")
			return
		}
		utils.RespondWithBadRequest(c, "invalid_form", "Expected a multipart form upload")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.RespondWithBadRequest(c, "no_file", "No PDF file provided")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		utils.RespondWithBadRequest(c, "invalid_pdf", "Only PDF files are allowed")
		return
	}

	ctx, cancel := utils.WithLongTimeout(c.Request.Context())
	defer cancel()

	doc, err := h.documents.Upload(ctx, services.UploadInput{
		OwnerID:  middleware.GetUserID(c),
		Title:    c.PostForm("title"),
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.UploadResponse{
		Document: *doc,
		Message:  "PDF uploaded successfully and queued for processing",
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultPageSize)))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > services.MaxPageSize {
		limit = services.DefaultPageSize
	}

	ctx, cancel := utils.WithTimeout(c.Request.Context())
	defer cancel()

	docs, total, err := h.documents.List(ctx, middleware.GetUserID(c), page, limit)
	if err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
			"pages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	ctx, cancel := utils.WithTimeout(c.Request.Context())
	defer cancel()

	doc, err := h.documents.Get(ctx, middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Status(c *gin.Context) {
	ctx, cancel := utils.WithTimeout(c.Request.Context())
	defer cancel()

	status, err := h.documents.Status(ctx, middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type queryRequest struct {
	QueryText string `json:"query_text"`
}

// Query accepts the question as ?query_text= or as a JSON body.
func (h *DocumentHandler) Query(c *gin.Context) {
	question := c.Query("query_text")
	if question == "" && c.Request.Method == http.MethodPost {
		var req queryRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			question = req.QueryText
		}
	}
	if strings.TrimSpace(question) == "" {
		utils.RespondWithBadRequest(c, "missing_query", "query_text is required")
		return
	}

	answer, err := h.query.Ask(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), question)
	if err != nil {
		logger.Warn("Query failed", "document_id", c.Param("id"), "error", err)
		utils.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

func (h *DocumentHandler) Reingest(c *gin.Context) {
	ctx, cancel := utils.WithTimeout(c.Request.Context())
	defer cancel()

	doc, err := h.documents.Reingest(ctx, middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	ctx, cancel := utils.WithLongTimeout(c.Request.Context())
	defer cancel()

	if err := h.documents.Delete(ctx, middleware.GetUserID(c), c.Param("id")); err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
