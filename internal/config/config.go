package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port      int              `json:"port"`
	LogConfig logger.LogConfig `json:"log_config"`
	DB        DBConfig         `json:"db"`
	Queue     QueueConfig      `json:"queue"`
	FileStore FileStoreConfig  `json:"file_store"`
	AI        AIConfig         `json:"ai"`
	Extractor ExtractorConfig  `json:"extractor"`
	Embedding EmbeddingConfig  `json:"embedding"`
	Search    SearchConfig     `json:"search"`
}

type DBConfig struct {
	DSN            string `json:"dsn"`
	MaxOpenConns   int    `json:"max_open_conns"`
	MaxIdleConns   int    `json:"max_idle_conns"`
	Dimension      int    `json:"dimension"`
	HNSWM          int    `json:"hnsw_m"`
	HNSWEfConstruc int    `json:"hnsw_ef_construction"`
}

type QueueConfig struct {
	Type           string `json:"type"`
	URL            string `json:"url"`
	Stream         string `json:"stream"`
	ExtractSubject string `json:"extract_subject"`
	EmbedSubject   string `json:"embed_subject"`
	DeadLetter     string `json:"dead_letter_subject"`
	MaxDeliver     int    `json:"max_deliver"`
}

type FileStoreConfig struct {
	Type string   `json:"type"`
	Dir  string   `json:"dir"`
	S3   S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

type AIConfig struct {
	Provider       string      `json:"provider"`
	Data           interface{} `json:"data"`
	EmbedModel     string      `json:"embed_model"`
	GenerateModel  string      `json:"generate_model"`
	TimeoutSeconds int         `json:"timeout_seconds"`
}

type ExtractorConfig struct {
	MaxFileSizeMB     int `json:"max_file_size_mb"`
	MaxRetries        int `json:"max_retries"`
	RetryDelaySeconds int `json:"retry_delay_seconds"`
	Workers           int `json:"workers"`
}

type EmbeddingConfig struct {
	ChunkSize        int `json:"chunk_size"`
	ChunkOverlap     int `json:"chunk_overlap"`
	BatchSize        int `json:"batch_size"`
	MaxRetries       int `json:"max_retries"`
	RetryDelaySecond int `json:"retry_delay_seconds"`
	MaxMemoryPercent int `json:"max_memory_percent"`
	Workers          int `json:"workers"`
	CacheTTLDays     int `json:"cache_ttl_days"`
}

type SearchConfig struct {
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	MaxChunks   int     `json:"max_chunks"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	if cfg.DB.MaxOpenConns == 0 {
		cfg.DB.MaxOpenConns = 10
	}
	if cfg.DB.MaxIdleConns == 0 {
		cfg.DB.MaxIdleConns = 2
	}
	if cfg.DB.Dimension == 0 {
		cfg.DB.Dimension = 1536
	}
	if cfg.DB.HNSWM == 0 {
		cfg.DB.HNSWM = 16
	}
	if cfg.DB.HNSWEfConstruc == 0 {
		cfg.DB.HNSWEfConstruc = 64
	}
	if err := applyQueueDefaults(&cfg.Queue); err != nil {
		return nil, err
	}
	switch cfg.FileStore.Type {
	case "", "local":
		cfg.FileStore.Type = "local"
		if cfg.FileStore.Dir == "" {
			return nil, fmt.Errorf("file_store.dir is required for local store")
		}
	case "s3":
		if cfg.FileStore.S3.Endpoint == "" || cfg.FileStore.S3.Bucket == "" || cfg.FileStore.S3.SecretID == "" || cfg.FileStore.S3.SecretKey == "" {
			return nil, fmt.Errorf("file_store.s3 endpoint/bucket/secret_id/secret_key are required for s3 store")
		}
	default:
		return nil, fmt.Errorf("file_store.type must be local or s3")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.embed_model is required")
	}
	if cfg.AI.GenerateModel == "" {
		return nil, fmt.Errorf("ai.generate_model is required")
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.Extractor.MaxFileSizeMB == 0 {
		cfg.Extractor.MaxFileSizeMB = 100
	}
	if cfg.Extractor.MaxRetries == 0 {
		cfg.Extractor.MaxRetries = 3
	}
	if cfg.Extractor.RetryDelaySeconds == 0 {
		cfg.Extractor.RetryDelaySeconds = 5
	}
	if cfg.Extractor.Workers == 0 {
		cfg.Extractor.Workers = 2
	}
	if err := applyEmbeddingDefaults(&cfg.Embedding); err != nil {
		return nil, err
	}
	if cfg.Search.MaxTokens == 0 {
		cfg.Search.MaxTokens = 1000
	}
	if cfg.Search.Temperature == 0 {
		cfg.Search.Temperature = 0.5
	}
	if cfg.Search.MaxChunks == 0 {
		cfg.Search.MaxChunks = 10
	}
	return &cfg, nil
}

func applyQueueDefaults(cfg *QueueConfig) error {
	switch cfg.Type {
	case "", "nats":
		cfg.Type = "nats"
		if cfg.URL == "" {
			cfg.URL = "nats://127.0.0.1:4222"
		}
	case "memory":
	default:
		return fmt.Errorf("queue.type must be nats or memory")
	}
	if cfg.Stream == "" {
		cfg.Stream = "DOCS"
	}
	if cfg.ExtractSubject == "" {
		cfg.ExtractSubject = "docs.extract"
	}
	if cfg.EmbedSubject == "" {
		cfg.EmbedSubject = "docs.embed"
	}
	if cfg.DeadLetter == "" {
		cfg.DeadLetter = "docs.dlq"
	}
	if cfg.MaxDeliver == 0 {
		cfg.MaxDeliver = 4
	}
	return nil
}

func applyEmbeddingDefaults(cfg *EmbeddingConfig) error {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 10
	}
	if cfg.ChunkSize <= cfg.ChunkOverlap {
		return fmt.Errorf("embedding.chunk_size must be greater than chunk_overlap")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 64
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelaySecond == 0 {
		cfg.RetryDelaySecond = 5
	}
	if cfg.MaxMemoryPercent == 0 {
		cfg.MaxMemoryPercent = 85
	}
	if cfg.MaxMemoryPercent < 0 || cfg.MaxMemoryPercent > 100 {
		return fmt.Errorf("embedding.max_memory_percent must be between 1 and 100")
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.CacheTTLDays == 0 {
		cfg.CacheTTLDays = 30
	}
	return nil
}
