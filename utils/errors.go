package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/logger"
	"rag-document-platform/services"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, errorCode, message string) {
	RespondWithError(c, http.StatusBadRequest, errorCode, message, nil)
}

// RespondWithUnauthorized sends a 401 Unauthorized error
func RespondWithUnauthorized(c *gin.Context, message string) {
	RespondWithError(c, http.StatusUnauthorized, "unauthorized", message, nil)
}

// RespondWithServiceError maps a service failure to its HTTP status and
// error code. Unrecognized errors are logged and reported as internal.
func RespondWithServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrDocumentNotFound):
		RespondWithError(c, http.StatusNotFound, "not_found", "Document not found", nil)
	case errors.Is(err, services.ErrNotProcessed):
		RespondWithError(c, http.StatusConflict, "not_processed", "Document is not yet processed or processing failed", gin.H{"reason": err.Error()})
	case errors.Is(err, services.ErrAlreadyProcessing):
		RespondWithError(c, http.StatusConflict, "already_processing", "Document is already being processed", nil)
	case errors.Is(err, services.ErrInvalidTransition):
		RespondWithError(c, http.StatusConflict, "invalid_status", "Document cannot change to the requested status", gin.H{"reason": err.Error()})
	case errors.Is(err, services.ErrNoRelevantContent):
		RespondWithError(c, http.StatusNotFound, "no_relevant_content", "No relevant chunks found for this query in the document", nil)
	case errors.Is(err, services.ErrGenerationUnavailable):
		RespondWithError(c, http.StatusServiceUnavailable, "generation_unavailable", "Failed to get a response from the language model", nil)
	case errors.Is(err, services.ErrInvalidPDF):
		RespondWithError(c, http.StatusBadRequest, "invalid_pdf", "File does not appear to be a valid PDF", nil)
	case errors.Is(err, services.ErrFileTooLarge):
		RespondWithError(c, http.StatusBadRequest, "file_too_large", "File size exceeds maximum limit", nil)
	case errors.Is(err, apperrors.ErrValidation):
		RespondWithError(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, apperrors.ErrEmbedding):
		logger.Error("Embedding failed", "path", c.FullPath(), "error", err)
		RespondWithError(c, http.StatusServiceUnavailable, "embedding_unavailable", "Failed to generate embeddings", nil)
	case errors.Is(err, apperrors.ErrStorage):
		logger.Error("Storage operation failed", "path", c.FullPath(), "error", err)
		RespondWithError(c, http.StatusInternalServerError, "storage_error", "Storage operation failed", nil)
	default:
		logger.Error("Unhandled service error", "path", c.FullPath(), "error", err)
		RespondWithError(c, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
	}
}
