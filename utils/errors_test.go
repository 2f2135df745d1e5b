package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-document-platform/internal/apperrors"
	"rag-document-platform/services"
)

func TestRespondWithServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrDocumentNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: status is PROCESSING", services.ErrNotProcessed), http.StatusConflict, "not_processed"},
		{services.ErrAlreadyProcessing, http.StatusConflict, "already_processing"},
		{services.ErrNoRelevantContent, http.StatusNotFound, "no_relevant_content"},
		{fmt.Errorf("%w: %w", services.ErrGenerationUnavailable, apperrors.Generation("generate", errors.New("503"))), http.StatusServiceUnavailable, "generation_unavailable"},
		{apperrors.Validation("upload", services.ErrInvalidPDF), http.StatusBadRequest, "invalid_pdf"},
		{apperrors.Validation("upload", services.ErrFileTooLarge), http.StatusBadRequest, "file_too_large"},
		{apperrors.Validation("ask", errors.New("query text is required")), http.StatusBadRequest, "validation_error"},
		{apperrors.Storage("delete", errors.New("boom")), http.StatusInternalServerError, "storage_error"},
		{errors.New("mystery"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			RespondWithServiceError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.True(t, c.IsAborted())
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.ErrorCode)
			assert.NotEmpty(t, body.Message)
		})
	}
}
