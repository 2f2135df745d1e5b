package models

import (
	"time"
)

// DocumentStatus is the lifecycle state of an uploaded document
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "PENDING"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusCompleted  DocumentStatus = "COMPLETED"
	StatusFailed     DocumentStatus = "FAILED"
)

// Document is the persisted record of an uploaded PDF
type Document struct {
	ID                  string         `bson:"_id" json:"id"`
	OwnerID             string         `bson:"owner_id" json:"owner_id"`
	Title               string         `bson:"title" json:"title"`
	Filename            string         `bson:"filename" json:"filename"`
	StorageKey          string         `bson:"storage_key" json:"storage_key"`
	FileSizeBytes       int64          `bson:"file_size_bytes" json:"file_size_bytes"`
	Status              DocumentStatus `bson:"status" json:"processing_status"`
	Summary             string         `bson:"summary,omitempty" json:"summary,omitempty"`
	TaskID              string         `bson:"task_id,omitempty" json:"task_id,omitempty"`
	ErrorMessage        string         `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ChunkCount          int            `bson:"chunk_count" json:"chunk_count"`
	UploadedAt          time.Time      `bson:"uploaded_at" json:"upload_timestamp"`
	UpdatedAt           time.Time      `bson:"updated_at" json:"updated_at"`
	ProcessingStartedAt *time.Time     `bson:"processing_started_at,omitempty" json:"processing_started_at,omitempty"`
	ProcessedAt         *time.Time     `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// IsTerminal reports whether the status ends a processing run.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AllowedFrom lists the states a document may move to `to` from.
// COMPLETED and FAILED only return to PENDING through an explicit re-ingest request.
func AllowedFrom(to DocumentStatus) []DocumentStatus {
	switch to {
	case StatusProcessing:
		return []DocumentStatus{StatusPending}
	case StatusCompleted, StatusFailed:
		return []DocumentStatus{StatusProcessing}
	case StatusPending:
		return []DocumentStatus{StatusCompleted, StatusFailed}
	default:
		return nil
	}
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to DocumentStatus) bool {
	for _, s := range AllowedFrom(to) {
		if s == from {
			return true
		}
	}
	return false
}

// UploadResponse is returned after a document is accepted for processing
type UploadResponse struct {
	Document
	Message string `json:"message"`
}
