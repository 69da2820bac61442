package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Milvus   MilvusConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Campus   CampusConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        int
	WriteTimeout       int
	BodyLimit          int
	RateLimitPerMinute int
	// AllowedOrigins drives CORS and the CSP connect-src list. Empty
	// means any origin.
	AllowedOrigins []string
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
	IndexType      string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
	TTLSec   int
}

type LLMConfig struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
	EmbeddingDim   int
}

// PipelineConfig carries the retrieval pipeline tuning knobs. The
// relevance threshold and fallback count are inherited defaults, not
// derived values; they are configurable for that reason.
type PipelineConfig struct {
	TopK               int
	RelevanceThreshold int
	NoiseFloor         int
	FallbackChunks     int
	RerankConcurrency  int
	ChunkSize          int
	LongSegment        int
	Deep               bool
}

// CampusConfig enumerates the valid scope values. Concrete values must
// match what was written at indexing time verbatim.
type CampusConfig struct {
	Batches       []string
	Branches      []string
	Semesters     []string
	DocumentTypes []string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/campus-rag")

	viper.SetEnvPrefix("CAMPUS_RAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 10485760)
	viper.SetDefault("server.rateLimitPerMinute", 60)
	viper.SetDefault("server.allowedOrigins", []string{})

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "campus_documents")
	viper.SetDefault("milvus.vectorDim", 768)
	viper.SetDefault("milvus.indexType", "IVF_FLAT")

	viper.SetDefault("sqlite.path", "./data/campusrag.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.ttlSec", 3600)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 768)

	viper.SetDefault("pipeline.topK", 5)
	viper.SetDefault("pipeline.relevanceThreshold", 7)
	viper.SetDefault("pipeline.noiseFloor", 2)
	viper.SetDefault("pipeline.fallbackChunks", 3)
	viper.SetDefault("pipeline.rerankConcurrency", 4)
	viper.SetDefault("pipeline.chunkSize", 1000)
	viper.SetDefault("pipeline.longSegment", 1500)
	viper.SetDefault("pipeline.deep", true)

	viper.SetDefault("campus.batches", []string{
		"2022-2026", "2023-2027", "2024-2028", "2025-2029",
	})
	viper.SetDefault("campus.branches", []string{
		"Computer Engineering", "Information Technology", "Mechanical Engineering",
		"Electrical & Communication", "Electrical Engineering",
	})
	viper.SetDefault("campus.semesters", []string{"1", "2", "3", "4", "5", "6", "7", "8"})
	viper.SetDefault("campus.documentTypes", []string{
		"ExamTimetable", "ClassTimeTable", "Circular", "EventInformation",
		"FeesNotice", "GeneralInformation",
	})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
