// Package config loads shopsight configuration.
//
// Values are layered, lowest priority first:
//
//  1. built-in defaults (defaultConfig)
//  2. an optional YAML file (SHOPSIGHT_CONFIG, or ./shopsight.yaml)
//  3. environment variables, after a .env file in the working directory
//     has been merged into the process environment
package config

import (
	"time"
)

// Config is the full application configuration.
type Config struct {
	Data     DataConfig     `koanf:"data"`
	Source   SourceConfig   `koanf:"source"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Server   ServerConfig   `koanf:"server"`
	LLM      LLMConfig      `koanf:"llm"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DataConfig locates the persisted tables.
type DataConfig struct {
	Dir string `koanf:"dir"`
	// KeepGenerations is how many table generations survive pruning,
	// including the current one.
	KeepGenerations int `koanf:"keep_generations"`
}

// SourceConfig describes where raw catalog and transaction files come from.
// Local paths, when set, take precedence over the bucket.
type SourceConfig struct {
	Bucket             string `koanf:"bucket"`
	Region             string `koanf:"region"`
	Endpoint           string `koanf:"endpoint"`
	ArticlesPrefix     string `koanf:"articles_prefix"`
	TransactionsPrefix string `koanf:"transactions_prefix"`
	Anonymous          bool   `koanf:"anonymous"`
	Concurrency        int    `koanf:"concurrency"`
	MaxFiles           int    `koanf:"max_files"`
	DownloadDir        string `koanf:"download_dir"`

	ArticlesPath      string   `koanf:"articles_path"`
	TransactionsPaths []string `koanf:"transactions_paths"`
}

// Remote reports whether files should be fetched from the bucket.
func (s SourceConfig) Remote() bool {
	return s.ArticlesPath == "" && s.Bucket != ""
}

// PipelineConfig tunes the ingest run.
type PipelineConfig struct {
	BatchSize int `koanf:"batch_size"`
	// MemoryFraction bounds one in-flight batch relative to physical RAM.
	MemoryFraction    float64 `koanf:"memory_fraction"`
	TargetCount       int     `koanf:"target_count"`
	PerCategoryQuota  int     `koanf:"per_category_quota"`
	SyntheticProducts int     `koanf:"synthetic_products"`
	SyntheticDays     int     `koanf:"synthetic_days"`
	// SyntheticEndDate is YYYY-MM-DD; empty means today (UTC).
	SyntheticEndDate string `koanf:"synthetic_end_date"`
	Seed             int64  `koanf:"seed"`
	TolerateMissing  bool   `koanf:"tolerate_missing"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LLMConfig configures the OpenAI-compatible client. An empty APIKey
// selects the local keyword/template fallback.
type LLMConfig struct {
	APIKey  string        `koanf:"api_key"`
	Model   string        `koanf:"model"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `koanf:"level"`
	Human bool   `koanf:"human"`
}

func defaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Dir:             "data",
			KeepGenerations: 3,
		},
		Source: SourceConfig{
			Bucket:             "kumo-public-datasets",
			Region:             "us-west-2",
			ArticlesPrefix:     "hm_with_images/articles/",
			TransactionsPrefix: "hm_with_images/transactions/",
			Anonymous:          true,
			Concurrency:        4,
			MaxFiles:           100,
			DownloadDir:        "data/raw",
		},
		Pipeline: PipelineConfig{
			BatchSize:         100_000,
			MemoryFraction:    0.25,
			TargetCount:       150,
			PerCategoryQuota:  10,
			SyntheticProducts: 200,
			SyntheticDays:     120,
			Seed:              42,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimit:       100,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Model:   "gpt-5-nano",
			BaseURL: "https://api.openai.com/v1",
			Timeout: 20 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
