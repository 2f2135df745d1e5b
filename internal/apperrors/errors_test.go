package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKindSentinel(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("stage failed: %w", Generation("POST /generate", cause))

	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrStorage)
	assert.Equal(t, KindGeneration, KindOf(err))
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"op and cause", Extraction("open pdf", errors.New("bad xref")), "ExtractionError: open pdf: bad xref"},
		{"cause only", &Error{Kind: KindStorage, Err: errors.New("timeout")}, "StorageError: timeout"},
		{"op only", &Error{Kind: KindValidation, Op: "length mismatch"}, "ValidationError: length mismatch"},
		{"kind only", ErrEmbedding, "EmbeddingError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, KindValidation, KindOf(Newf(KindValidation, "got %d want %d", 1, 2)))
}
