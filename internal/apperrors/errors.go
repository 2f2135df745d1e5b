package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the pipeline concern that produced it.
type Kind string

const (
	KindExtraction Kind = "ExtractionError"
	KindEmbedding  Kind = "EmbeddingError"
	KindStorage    Kind = "StorageError"
	KindGeneration Kind = "GenerationError"
	KindValidation Kind = "ValidationError"
)

// Error carries the failure kind, the operation that failed and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Sentinels for errors.Is matching on kind alone.
var (
	ErrExtraction = &Error{Kind: KindExtraction}
	ErrEmbedding  = &Error{Kind: KindEmbedding}
	ErrStorage    = &Error{Kind: KindStorage}
	ErrGeneration = &Error{Kind: KindGeneration}
	ErrValidation = &Error{Kind: KindValidation}
)

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against a bare kind sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// New wraps err with a kind and the failing operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an error of the given kind from a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func Extraction(op string, err error) *Error { return New(KindExtraction, op, err) }
func Embedding(op string, err error) *Error  { return New(KindEmbedding, op, err) }
func Storage(op string, err error) *Error    { return New(KindStorage, op, err) }
func Generation(op string, err error) *Error { return New(KindGeneration, op, err) }
func Validation(op string, err error) *Error { return New(KindValidation, op, err) }

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
