package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"rag-document-platform/internal/apperrors"
)

// DefaultSeparators go from coarse to fine: paragraph, line, sentence, word.
// "" splits into characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits text into overlapping windows, preferring paragraph, then
// line, then word boundaries.
type Chunker struct {
	size       int
	overlap    int
	length     func(string) int
	separators []string
}

type ChunkerOption func(*Chunker)

// WithLengthFunc measures pieces in a custom unit (tokens, bytes).
func WithLengthFunc(fn func(string) int) ChunkerOption {
	return func(c *Chunker) {
		if fn != nil {
			c.length = fn
		}
	}
}

func WithSeparators(separators []string) ChunkerOption {
	return func(c *Chunker) {
		if len(separators) > 0 {
			c.separators = separators
		}
	}
}

func NewChunker(size, overlap int, opts ...ChunkerOption) (*Chunker, error) {
	if size <= 0 {
		return nil, apperrors.Validation("new chunker", fmt.Errorf("chunk size must be positive, got %d", size))
	}
	if overlap < 0 || overlap >= size {
		return nil, apperrors.Validation("new chunker", fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap))
	}

	c := &Chunker{
		size:       size,
		overlap:    overlap,
		length:     utf8.RuneCountInString,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Split returns the chunks of text in order. Every chunk is a contiguous
// substring of text and together they cover it. A piece that cannot be
// divided further is emitted even when it exceeds the size.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return []string{}
	}
	return c.split(text, c.separators)
}

func (c *Chunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, s := range separators {
		if s == "" {
			separator = ""
			finer = nil
			break
		}
		if strings.Contains(text, s) {
			separator = s
			finer = separators[i+1:]
			break
		}
	}

	var chunks, fitting []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if c.length(piece) <= c.size {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			chunks = append(chunks, c.merge(fitting)...)
			fitting = nil
		}
		if len(finer) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, c.split(piece, finer)...)
		}
	}
	if len(fitting) > 0 {
		chunks = append(chunks, c.merge(fitting)...)
	}
	return chunks
}

// splitKeepSeparator attaches each separator to the start of the piece that
// follows it and drops empty pieces.
func splitKeepSeparator(text, separator string) []string {
	if separator == "" {
		pieces := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, separator)
	pieces := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = separator + p
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

// merge packs consecutive pieces into windows of at most size, carrying up
// to overlap units of trailing pieces into the next window.
func (c *Chunker) merge(pieces []string) []string {
	var chunks, current []string
	total := 0

	for _, piece := range pieces {
		l := c.length(piece)
		if total+l > c.size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, ""))
			for total > c.overlap || (total+l > c.size && total > 0) {
				total -= c.length(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += l
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, ""))
	}
	return chunks
}
