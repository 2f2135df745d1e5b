package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds record lookups and listing
	DefaultTimeout = 10 * time.Second

	// LongTimeout is for uploads and deletes that touch object storage
	LongTimeout = 2 * time.Minute

	// ShortTimeout is for health probes
	ShortTimeout = 2 * time.Second
)

// WithTimeout creates a context with default timeout
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithLongTimeout creates a context with long timeout for operations that may take longer
func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}

// WithShortTimeout bounds dependency pings
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}
