package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rag-document-platform/internal/ai"
	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/storage"
	"rag-document-platform/internal/vectorstore"
	"rag-document-platform/models"
)

// scriptedGenerator answers generation requests with a caller supplied function
// and records every request.
type scriptedGenerator struct {
	mu      sync.Mutex
	calls   []ai.GenerationRequest
	respond func(req ai.GenerationRequest) (string, error)
}

func (g *scriptedGenerator) Generate(_ context.Context, req ai.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	if g.respond == nil {
		return "ok.", nil
	}
	return g.respond(req)
}

func (g *scriptedGenerator) requests() []ai.GenerationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ai.GenerationRequest(nil), g.calls...)
}

type promptKind int

const (
	directKind promptKind = iota
	sectionKind
	reduceKind
	answerKind
)

func kindOf(prompt string) promptKind {
	switch {
	case strings.Contains(prompt, "Section Summaries:"):
		return reduceKind
	case strings.Contains(prompt, "Summarize the following section"):
		return sectionKind
	case strings.Contains(prompt, "Question:"):
		return answerKind
	default:
		return directKind
	}
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

// failingEmbedder always returns an EmbeddingError.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, apperrors.Embedding("embed", errors.New("provider down"))
}

// shortEmbedder drops the last vector.
type shortEmbedder struct{ inner ai.Embedder }

func (s shortEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := s.inner.Embed(ctx, texts)
	if err != nil || len(v) == 0 {
		return v, err
	}
	return v[:len(v)-1], nil
}

// buildPDF writes a minimal single-font PDF with one page per entry. Each
// page's lines are drawn top to bottom.
func buildPDF(pages ...[]string) []byte {
	escape := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)

	var objects []string
	kids := make([]string, len(pages))
	// 1 catalog, 2 pages, 3 font, then page/content pairs
	for i, lines := range pages {
		pageObj := 4 + i*2
		contentObj := pageObj + 1
		kids[i] = fmt.Sprintf("%d 0 R", pageObj)

		var stream strings.Builder
		stream.WriteString("BT /F1 12 Tf 72 720 Td 14 TL")
		for _, line := range lines {
			fmt.Fprintf(&stream, " (%s) Tj T*", escape.Replace(line))
		}
		stream.WriteString(" ET")

		objects = append(objects,
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents "+fmt.Sprintf("%d 0 R", contentObj)+" >>",
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", stream.Len(), stream.String()),
		)
	}
	objects = append([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}, objects...)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// testPipeline wires every service over in-memory adapters.
type testPipeline struct {
	documents *MemoryDocumentStore
	objects   *storage.MemoryStore
	index     *vectorstore.MemoryIndex
	progress  *MemoryProgressStore
	generator *scriptedGenerator
	embedder  ai.Embedder
	tempDir   string
	ingestor  *Ingestor
	query     *QueryService
}

type pipelineOption func(*testPipeline)

func withEmbedder(e ai.Embedder) pipelineOption {
	return func(p *testPipeline) { p.embedder = e }
}

func newTestPipeline(t *testing.T, opts ...pipelineOption) *testPipeline {
	t.Helper()
	p := &testPipeline{
		documents: NewMemoryDocumentStore(),
		objects:   storage.NewMemoryStore(),
		index:     vectorstore.NewMemoryIndex(),
		progress:  NewMemoryProgressStore(),
		generator: &scriptedGenerator{respond: func(req ai.GenerationRequest) (string, error) {
			if kindOf(req.Prompt) == answerKind {
				return "The answer is in the document.", nil
			}
			return "A document about testing.", nil
		}},
		embedder: ai.HashEmbedder{Dim: 64},
		tempDir:  t.TempDir(),
	}
	for _, opt := range opts {
		opt(p)
	}

	settings := config.DefaultPipelineSettings()
	chunker, err := NewChunker(settings.Chunking.ChunkSize, settings.Chunking.ChunkOverlap)
	require.NoError(t, err)
	gateway := vectorstore.NewGateway(p.index)

	p.ingestor = NewIngestor(IngestorDeps{
		Documents:  p.documents,
		Objects:    p.objects,
		Extractor:  NewPDFExtractor(),
		Summarizer: NewSummarizer(p.generator, ai.WordCounter{}, settings.Summarizer, nil),
		Chunker:    chunker,
		Embedder:   p.embedder,
		Vectors:    gateway,
		Progress:   p.progress,
		TempDir:    p.tempDir,
	})
	p.query = NewQueryService(p.documents, p.embedder, gateway, ai.NewReranker(nil), p.generator, settings.Retrieval, nil)
	return p
}

// seed stores data as a PENDING document's file.
func (p *testPipeline) seed(t *testing.T, owner string, data []byte) *models.Document {
	t.Helper()
	doc := newTestDocument(owner, time.Now().UTC())
	doc.StorageKey = "raw_pdfs/" + doc.ID + ".pdf"
	_, err := p.objects.Upload(context.Background(), doc.StorageKey, bytes.NewReader(data), int64(len(data)), "application/pdf")
	require.NoError(t, err)
	require.NoError(t, p.documents.Create(context.Background(), doc))
	return doc
}

func (p *testPipeline) reload(t *testing.T, id string) *models.Document {
	t.Helper()
	doc, err := p.documents.Get(context.Background(), id)
	require.NoError(t, err)
	return doc
}

// samplePages is three pages of distinct sentences.
func samplePages() [][]string {
	topics := []string{"solar panels", "river ecology", "medieval castles"}
	pages := make([][]string, len(topics))
	for i, topic := range topics {
		for line := 0; line < 30; line++ {
			pages[i] = append(pages[i], fmt.Sprintf("Line %d of page %d explains %s in plain words.", line+1, i+1, topic))
		}
	}
	return pages
}
