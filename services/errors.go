package services

import (
	"errors"

	"rag-document-platform/internal/ai"
)

var (
	ErrDocumentNotFound      = errors.New("document not found")
	ErrNotProcessed          = errors.New("document has not been processed")
	ErrNoRelevantContent     = errors.New("no relevant content found in document")
	ErrGenerationUnavailable = ai.ErrGenerationUnavailable
	ErrAlreadyProcessing     = errors.New("document is already being processed")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrInvalidPDF            = errors.New("file is not a PDF")
	ErrFileTooLarge          = errors.New("file exceeds the maximum upload size")
)
