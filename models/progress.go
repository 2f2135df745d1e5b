package models

import "time"

// ProgressRecord is the transient stage/percent of an active processing run
type ProgressRecord struct {
	DocumentID string    `json:"document_id"`
	Stage      string    `json:"stage"`
	Percent    int       `json:"progress_percent"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProcessingStatus is the progress surface exposed to clients
type ProcessingStatus struct {
	DocumentID string         `json:"document_id"`
	Status     DocumentStatus `json:"status"`
	Stage      string         `json:"stage"`
	Percent    int            `json:"progress_percent"`
}

// Ingestion stages in run order
const (
	StageInitializing       = "Initializing"
	StageDownloading        = "Downloading"
	StageDownloadComplete   = "Download complete"
	StageExtracting         = "Extracting text"
	StageExtractionComplete = "Text extraction complete"
	StageSummarizing        = "Generating summary"
	StageSummaryComplete    = "Summary generation complete"
	StageChunking           = "Chunking text"
	StageChunkingComplete   = "Chunking complete"
	StageEmbedding          = "Generating embeddings"
	StageEmbeddingComplete  = "Embeddings generated"
	StageStoring            = "Storing vectors"
	StageStorageComplete    = "Vector storage complete"
	StageCompleted          = "Completed"
	StageFailed             = "Failed"
	StageWaitingForWorker   = "Waiting for task to start"
)
