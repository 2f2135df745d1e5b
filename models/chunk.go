package models

import "fmt"

// Chunk is a bounded text span of a document together with its embedding
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Index      int            `json:"index"`
	Text       string         `json:"text"`
	Embedding  []float32      `json:"-"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Candidate is a passage returned by vector search, optionally rescored by the reranker
type Candidate struct {
	ID             string         `json:"id"`
	Text           string         `json:"document"`
	Distance       float64        `json:"distance"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	RelevanceScore *float64       `json:"relevance_score,omitempty"`
}

// QueryAnswer is a grounded answer plus the passages it was generated from
type QueryAnswer struct {
	DocumentID string      `json:"document_id"`
	Query      string      `json:"query"`
	Answer     string      `json:"llm_answer"`
	Passages   []Candidate `json:"retrieved_chunks"`
}

// CollectionName is the vector collection that holds a document's chunks.
func CollectionName(documentID string) string {
	return "doc_" + documentID
}

// ChunkID is the deterministic id of the n-th chunk of a document.
func ChunkID(documentID string, n int) string {
	return fmt.Sprintf("doc_%s_chunk_%d", documentID, n)
}
