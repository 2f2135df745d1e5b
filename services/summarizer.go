package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rag-document-platform/internal/ai"
	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/telemetry"
)

const directPromptTemplate = `[INST] Provide a comprehensive and detailed summary of the following document. Cover all main points, key arguments, and the overall conclusion thoroughly. The summary should be easy to understand and provide a complete overview of the content.

Document:
%s

Comprehensive Document Summary: [/INST]`

const sectionPromptTemplate = `[INST] Summarize the following section of a larger document. Focus on the main points and key information presented in this specific section. Ensure it is a self-contained summary of THIS section only. Do not provide a conclusion for the entire document or transition phrases that suggest continuation from previous sections. **Do not mention the section of the document you are summarizing (e.g., "In Section X").**

Section %[1]d:
%[2]s

Section %[1]d Summary: [/INST]`

const reducePromptTemplate = `[INST] You have been provided with several summaries of different sections of a single large document.

Your primary task is to **synthesize these individual summaries into one comprehensive, detailed, and cohesive summary of the entire document.**

**Crucially, remove all references to specific sections or chapters (e.g., "In Section X", "Chapter Y discusses"). Integrate the information smoothly as if it were a single narrative.**

Ensure a logical flow, integrate the main ideas from all sections, and avoid redundancy. Provide a thorough overview that captures the essence and key insights of the full content.

Section Summaries:
%s

Comprehensive Document Summary: [/INST]`

func directPrompt(content string) string { return fmt.Sprintf(directPromptTemplate, content) }

func sectionPrompt(n int, content string) string {
	return fmt.Sprintf(sectionPromptTemplate, n, content)
}

func reducePrompt(content string) string { return fmt.Sprintf(reducePromptTemplate, content) }

// SummaryResult describes one summarization. An empty Summary means none
// could be produced.
type SummaryResult struct {
	Summary  string
	Sections int // section prompts built across all levels
	Skipped  int // sections whose prompt exceeded the input limit
	Calls    int // generation calls made
	Depth    int // deepest recursion level reached
}

// Summarizer condenses documents of any length with a map-reduce over
// token-bounded sections, recursing while the combined section summaries
// are still too long.
type Summarizer struct {
	generator ai.Generator
	tokens    ai.TokenCounter
	cfg       config.SummarizerSettings
	metrics   *telemetry.Metrics
}

func NewSummarizer(generator ai.Generator, tokens ai.TokenCounter, cfg config.SummarizerSettings, metrics *telemetry.Metrics) *Summarizer {
	return &Summarizer{
		generator: generator,
		tokens:    tokens,
		cfg:       cfg,
		metrics:   metrics,
	}
}

// Budget is the number of content tokens that fit in a single prompt.
func (s *Summarizer) Budget() int {
	overhead := max(
		s.tokens.Count(directPrompt("")),
		s.tokens.Count(sectionPrompt(1, "")),
		s.tokens.Count(reducePrompt("")),
	)
	return s.cfg.MaxInputTokens - overhead
}

func (s *Summarizer) wordsToTokens(words int) int {
	return int(float64(words) * s.cfg.WordsToTokens)
}

func (s *Summarizer) Summarize(ctx context.Context, text string) (*SummaryResult, error) {
	result := &SummaryResult{}
	if err := s.summarize(ctx, text, 0, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Summarizer) summarize(ctx context.Context, text string, depth int, result *SummaryResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	budget := s.Budget()
	if budget <= 0 {
		return apperrors.Generation("summarize", fmt.Errorf("prompt templates leave no room for content (max input %d tokens)", s.cfg.MaxInputTokens))
	}

	textTokens := s.tokens.Count(text)
	if textTokens <= budget {
		logger.Info("Generating direct summary", "tokens", textTokens, "depth", depth)
		summary, ok := s.generate(ctx, directPrompt(text), s.wordsToTokens(s.cfg.WordsPerChunkSummary*2), result)
		if ok {
			result.Summary = summary
		}
		return ctx.Err()
	}

	size := int(float64(budget) * s.cfg.ChunkRatio)
	chunker, err := NewChunker(size, int(float64(size)*s.cfg.OverlapRatio), WithLengthFunc(s.tokens.Count))
	if err != nil {
		return apperrors.Generation("summarize", err)
	}
	sections := chunker.Split(text)
	logger.Info("Text exceeds token budget, summarizing sections", "tokens", textTokens, "budget", budget, "sections", len(sections), "depth", depth)

	sectionMaxTokens := s.wordsToTokens(s.cfg.WordsPerChunkSummary)
	summaries := make([]string, 0, len(sections))
	for i, section := range sections {
		result.Sections++
		prompt := sectionPrompt(i+1, section)
		if n := s.tokens.Count(prompt); n > s.cfg.MaxInputTokens {
			logger.Warn("Section prompt exceeds input limit, skipping", "section", i+1, "tokens", n, "limit", s.cfg.MaxInputTokens)
			result.Skipped++
			continue
		}
		summary, ok := s.generate(ctx, prompt, sectionMaxTokens, result)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			logger.Warn("Failed to summarize section", "section", i+1)
			continue
		}
		summaries = append(summaries, summary)
	}

	if len(summaries) == 0 {
		logger.Error("No section summaries generated", "sections", len(sections), "skipped", result.Skipped)
		return nil
	}

	combined := strings.Join(summaries, "\n\n")
	combinedTokens := s.tokens.Count(combined)
	if combinedTokens > budget {
		if combinedTokens >= textTokens {
			return apperrors.Generation("summarize", fmt.Errorf("section summaries did not shrink the text (%d -> %d tokens)", textTokens, combinedTokens))
		}
		if depth+1 > s.cfg.MaxDepth {
			return apperrors.Generation("summarize", fmt.Errorf("recursion depth %d exceeds limit %d", depth+1, s.cfg.MaxDepth))
		}
		result.Depth = depth + 1
		logger.Info("Combined summaries still exceed budget, recursing", "tokens", combinedTokens, "depth", depth+1)
		return s.summarize(ctx, combined, depth+1, result)
	}

	maxTokens := min(s.wordsToTokens(len(sections)*s.cfg.WordsPerChunkSummary), s.cfg.FinalSummaryCap)
	logger.Info("Generating final summary", "sections", len(summaries), "max_tokens", maxTokens)
	final, ok := s.generate(ctx, reducePrompt(combined), maxTokens, result)
	if ok {
		result.Summary = trimToSentence(final)
	}
	return ctx.Err()
}

// generate makes one call and reports whether it produced usable text.
func (s *Summarizer) generate(ctx context.Context, prompt string, maxTokens int, result *SummaryResult) (string, bool) {
	result.Calls++
	out, err := s.generator.Generate(ctx, ai.GenerationRequest{
		Prompt:    prompt,
		MaxTokens: maxTokens,
	})
	if err == nil && strings.TrimSpace(out) == "" {
		err = errors.New("empty completion")
	}
	s.metrics.RecordGeneration("summary", err == nil)
	if err != nil {
		logger.Warn("Summary generation call failed", "error", err)
		return "", false
	}
	return out, true
}

// trimToSentence drops a trailing partial sentence and always ends on ".".
// Text without any "." is kept whole and terminated.
func trimToSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if i := strings.LastIndex(text, "."); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	return text + "."
}
