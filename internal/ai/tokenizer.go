package ai

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"rag-document-platform/internal/logger"
)

// TokenCounter measures text in model tokens. Implementations must be
// deterministic and safe for concurrent use.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with a BPE encoding such as cl100k_base.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the named encoding. When the encoding cannot be
// loaded (no network for the BPE ranks, unknown name) it falls back to a
// character estimate so budgets stay conservative rather than failing startup.
func NewTokenCounter(encoding string) TokenCounter {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warn("Tokenizer unavailable, using character estimate", "encoding", encoding, "error", err)
		return EstimateCounter{}
	}
	return &TiktokenCounter{enc: enc}
}

func (t *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// EstimateCounter approximates 1 token per 4 characters.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// WordCounter counts whitespace separated words as tokens.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}
