package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/logger"
)

// TextExtractor turns a file on disk into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, filePath string) (*ExtractionResult, error)
}

// PDFExtractor reads the text layer of a PDF page by page.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractionResult contains the result of PDF text extraction
type ExtractionResult struct {
	Text           string
	Pages          int
	SkippedPages   int
	ProcessingTime time.Duration
	WordCount      int
	CharacterCount int
}

// ExtractText returns the text of every page in page order. Unreadable or
// empty documents are an ExtractionError.
func (e *PDFExtractor) ExtractText(ctx context.Context, filePath string) (result *ExtractionResult, err error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, apperrors.Extraction("extract text", err)
	}

	// the pdf package panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = apperrors.Extraction("extract text", fmt.Errorf("pdf decode panic: %v", r))
		}
	}()

	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, apperrors.Extraction("open pdf", err)
	}
	defer f.Close()

	var textBuilder strings.Builder
	pages := reader.NumPage()
	skipped := 0

	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Extraction("extract text", err)
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			skipped++
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract text from page", "page", i, "error", err)
			skipped++
			continue
		}

		if textBuilder.Len() > 0 && !strings.HasSuffix(textBuilder.String(), "\n") {
			textBuilder.WriteString("\n")
		}
		textBuilder.WriteString(text)
	}

	extracted := textBuilder.String()
	if strings.TrimSpace(extracted) == "" {
		return nil, apperrors.Extraction("extract text", errors.New("no text content extracted from PDF"))
	}

	result = &ExtractionResult{
		Text:           extracted,
		Pages:          pages,
		SkippedPages:   skipped,
		ProcessingTime: time.Since(start),
	}
	analyzeText(result)
	return result, nil
}

// analyzeText fills in word and character counts
func analyzeText(result *ExtractionResult) {
	result.WordCount = len(strings.Fields(result.Text))
	result.CharacterCount = len([]rune(result.Text))
}
