package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	LogLevel    string
	CORSOrigins []string
	MaxFileSize int64
	JWTSecret   string

	// MongoDB
	MongoURI            string
	DBName              string
	DocumentsCollection string

	// Redis (progress records, rate limiting, task queue)
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RateLimitReqs   int
	RateLimitWindow int

	// Object storage (MinIO / S3)
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageRegion    string
	StorageUseSSL    bool

	// Vector index (Milvus)
	MilvusAddress  string
	MilvusUsername string
	MilvusPassword string
	MilvusDatabase string

	// Generation service
	GenerationProvider    string // "http" (default), "gemini"
	GenerationServiceURL  string
	GenerationTimeout     time.Duration
	GenerationRPS         float64
	GeminiGenerationModel string

	// Embeddings configuration
	EmbeddingsProvider    string // "google" (default), "openai"
	GeminiAPIKey          string
	GoogleEmbeddingsModel string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIEmbeddingsModel string

	// Reranker
	RerankerURL   string
	RerankerModel string

	// Tokenizer encoding used for summarization budgets
	TokenizerEncoding string

	// Worker
	WorkerConcurrency    int
	TaskTimeout          time.Duration
	ReaperInterval       time.Duration
	StaleProcessingAfter time.Duration
	TempDir              string

	// Telemetry
	ServiceName      string
	OTLPEndpoint     string
	TraceSampleRatio float64

	// Pipeline tuning file (YAML)
	PipelineConfigPath string
	Pipeline           *PipelineSettings
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		LogLevel:    getEnv("LOG_LEVEL", ""),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		MaxFileSize: getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		JWTSecret:   getEnv("JWT_SECRET", ""),

		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017/rag_documents"),
		DBName:              getEnv("DB_NAME", "rag_documents"),
		DocumentsCollection: getEnv("DOCUMENTS_COLLECTION", "documents"),

		RedisURL:        getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey: getEnv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey: getEnv("STORAGE_SECRET_KEY", ""),
		StorageBucket:    getEnv("STORAGE_BUCKET", "book-summarizer-pdfs"),
		StorageRegion:    getEnv("STORAGE_REGION", "us-east-1"),
		StorageUseSSL:    getEnvBool("STORAGE_USE_SSL", false),

		MilvusAddress:  getEnv("MILVUS_ADDRESS", "localhost:19530"),
		MilvusUsername: getEnv("MILVUS_USERNAME", ""),
		MilvusPassword: getEnv("MILVUS_PASSWORD", ""),
		MilvusDatabase: getEnv("MILVUS_DATABASE", "default"),

		GenerationProvider:    getEnv("GENERATION_PROVIDER", "http"),
		GenerationServiceURL:  getEnv("GENERATION_SERVICE_URL", ""),
		GenerationTimeout:     getEnvDuration("GENERATION_TIMEOUT", 60*time.Second),
		GenerationRPS:         getEnvFloat64("GENERATION_RPS", 5),
		GeminiGenerationModel: getEnv("GEMINI_GENERATION_MODEL", "gemini-2.0-flash"),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),

		RerankerURL:   getEnv("RERANKER_URL", ""),
		RerankerModel: getEnv("RERANKER_MODEL", "cross-encoder/ms-marco-MiniLM-L-6-v2"),

		TokenizerEncoding: getEnv("TOKENIZER_ENCODING", "cl100k_base"),

		WorkerConcurrency:    getEnvInt("WORKER_CONCURRENCY", 10),
		TaskTimeout:          getEnvDuration("TASK_TIMEOUT", 20*time.Minute),
		ReaperInterval:       getEnvDuration("REAPER_INTERVAL", 5*time.Minute),
		StaleProcessingAfter: getEnvDuration("STALE_PROCESSING_AFTER", 30*time.Minute),
		TempDir:              getEnv("TEMP_DIR", os.TempDir()),

		ServiceName:      getEnv("OTEL_SERVICE_NAME", "rag-document-platform"),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRatio: getEnvFloat64("OTEL_TRACE_SAMPLE_RATIO", 0.1),

		PipelineConfigPath: getEnv("PIPELINE_CONFIG", "pipeline.yaml"),
	}

	pipeline, err := LoadPipelineSettings(cfg.PipelineConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline settings: %w", err)
	}
	cfg.Pipeline = pipeline

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	switch c.GenerationProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for GENERATION_PROVIDER=gemini")
		}
	default:
		if c.GenerationServiceURL == "" {
			return fmt.Errorf("GENERATION_SERVICE_URL is required - set it in .env file")
		}
	}

	if c.StaleProcessingAfter <= c.TaskTimeout {
		return fmt.Errorf("STALE_PROCESSING_AFTER (%s) must exceed TASK_TIMEOUT (%s)", c.StaleProcessingAfter, c.TaskTimeout)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
