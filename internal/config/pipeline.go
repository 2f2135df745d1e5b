package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChunkingSettings configures RAG chunking (character units).
type ChunkingSettings struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// SummarizerSettings configures the recursive summarizer.
type SummarizerSettings struct {
	MaxInputTokens       int     `yaml:"max_input_tokens"`
	WordsPerChunkSummary int     `yaml:"words_per_chunk_summary"`
	WordsToTokens        float64 `yaml:"words_to_tokens"`
	FinalSummaryCap      int     `yaml:"final_summary_cap"`
	MaxDepth             int     `yaml:"max_depth"`
	ChunkRatio           float64 `yaml:"chunk_ratio"`
	OverlapRatio         float64 `yaml:"overlap_ratio"`
}

// RetrievalSettings configures the query path.
type RetrievalSettings struct {
	TopK              int     `yaml:"top_k"`
	TopN              int     `yaml:"top_n"`
	AnswerMaxTokens   int     `yaml:"answer_max_tokens"`
	AnswerTemperature float64 `yaml:"answer_temperature"`
}

// PipelineSettings is the root of the pipeline tuning file.
type PipelineSettings struct {
	Chunking   ChunkingSettings   `yaml:"chunking"`
	Summarizer SummarizerSettings `yaml:"summarizer"`
	Retrieval  RetrievalSettings  `yaml:"retrieval"`
}

// DefaultPipelineSettings returns the built-in tuning.
func DefaultPipelineSettings() *PipelineSettings {
	return &PipelineSettings{
		Chunking: ChunkingSettings{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Summarizer: SummarizerSettings{
			MaxInputTokens:       30000,
			WordsPerChunkSummary: 100,
			WordsToTokens:        1.3,
			FinalSummaryCap:      3000,
			MaxDepth:             8,
			ChunkRatio:           0.8,
			OverlapRatio:         0.1,
		},
		Retrieval: RetrievalSettings{
			TopK:              10,
			TopN:              5,
			AnswerMaxTokens:   1000,
			AnswerTemperature: 0.7,
		},
	}
}

// LoadPipelineSettings reads a YAML tuning file. A missing file yields defaults;
// keys absent from the file keep their default values.
func LoadPipelineSettings(path string) (*PipelineSettings, error) {
	settings := DefaultPipelineSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("invalid pipeline settings %s: %w", path, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline settings %s: %w", path, err)
	}
	return settings, nil
}

// Validate rejects settings the pipeline cannot run with.
func (s *PipelineSettings) Validate() error {
	if s.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive")
	}
	if s.Chunking.ChunkOverlap < 0 || s.Chunking.ChunkOverlap >= s.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size)")
	}
	if s.Summarizer.MaxInputTokens <= 0 || s.Summarizer.WordsPerChunkSummary <= 0 {
		return fmt.Errorf("summarizer budgets must be positive")
	}
	if s.Summarizer.MaxDepth <= 0 {
		return fmt.Errorf("summarizer.max_depth must be positive")
	}
	if s.Retrieval.TopK <= 0 || s.Retrieval.TopN <= 0 {
		return fmt.Errorf("retrieval.top_k and retrieval.top_n must be positive")
	}
	return nil
}
