package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"docqa/types"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"

	StorePostgres = "postgres"
	StoreBolt     = "bolt"

	OCRNone   = "none"
	OCRLLM    = "llm"
	OCROllama = "ollama"

	MiB = 1 << 20
)

type Config struct {
	Server struct {
		Addr        string   `yaml:"addr" validate:"required"`
		BodyLimit   int      `yaml:"body_limit" validate:"gt=0"`
		CORSOrigins []string `yaml:"cors_origins"`
		StaticDir   string   `yaml:"static_dir"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" validate:"oneof=text json"`
	} `yaml:"log"`

	Store struct {
		Backend  string `yaml:"backend" validate:"oneof=postgres bolt"`
		BoltPath string `yaml:"bolt_path"`
		Postgres struct {
			Host      string `yaml:"host"`
			Port      string `yaml:"port"`
			User      string `yaml:"user"`
			Password  string `yaml:"password"`
			Database  string `yaml:"database"`
			VectorDim int    `yaml:"vector_dim" validate:"gt=0"`
		} `yaml:"postgres"`
	} `yaml:"store"`

	Upload struct {
		Dir               string   `yaml:"dir" validate:"required"`
		MaxFileSize       int64    `yaml:"max_file_size" validate:"gt=0"`
		AllowedExtensions []string `yaml:"allowed_extensions" validate:"min=1,dive,required"`
	} `yaml:"upload"`

	Chunking struct {
		ChunkSize          int `yaml:"chunk_size" validate:"gt=0"`
		ChunkOverlap       int `yaml:"chunk_overlap" validate:"gte=0"`
		MinParagraphLength int `yaml:"min_paragraph_length" validate:"gte=0"`
	} `yaml:"chunking"`

	Retrieval struct {
		NResults          int     `yaml:"n_results" validate:"gte=1,lte=100"`
		MinScore          float64 `yaml:"min_score"`
		ChunksPerDocument int     `yaml:"chunks_per_document" validate:"gte=1"`
		MaxContextTokens  int     `yaml:"max_context_tokens" validate:"gte=0"`
	} `yaml:"retrieval"`

	LLM struct {
		Provider       string        `yaml:"provider" validate:"oneof=googleai openai ollama"`
		Model          string        `yaml:"model" validate:"required"`
		BaseURL        string        `yaml:"base_url"`
		APIKey         string        `yaml:"-"`
		EmbeddingModel string        `yaml:"embedding_model" validate:"required"`
		EmbeddingURL   string        `yaml:"embedding_url"`
		Temperature    float64       `yaml:"temperature" validate:"gte=0,lte=2"`
		MaxTokens      int           `yaml:"max_tokens" validate:"gte=0"`
		RateLimit      float64       `yaml:"rate_limit" validate:"gte=0"`
		Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
		AnswerWorkers  int           `yaml:"answer_workers" validate:"gte=1"`
	} `yaml:"llm"`

	OCR struct {
		Backend     string `yaml:"backend" validate:"oneof=none llm ollama"`
		URL         string `yaml:"url"`
		Model       string `yaml:"model"`
		MaxAttempts int    `yaml:"max_attempts" validate:"gte=1"`
		MaxSide     int    `yaml:"max_side" validate:"gte=0"`
	} `yaml:"ocr"`

	Loader struct {
		SourceDir  string        `yaml:"source_dir"`
		ArchiveDir string        `yaml:"archive_dir"`
		BadDir     string        `yaml:"bad_dir"`
		SettleTime time.Duration `yaml:"settle_time" validate:"gte=0"`
	} `yaml:"loader"`
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file and the process environment, in that order. Values set
// explicitly, zero included, are kept. Model names left empty are filled for
// the provider chosen last.
func Load(path, envFile string) (*Config, error) {
	cfg := baseDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	mergeWithEnv(cfg)
	applyProviderDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(envFile string) error {
	if envFile == "" {
		// a missing default .env is fine
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("error loading env file %s: %w", envFile, err)
	}
	return nil
}

func Default() *Config {
	cfg := baseDefaults()
	applyProviderDefaults(cfg)
	return cfg
}

// baseDefaults returns the settings that do not depend on the LLM provider.
func baseDefaults() *Config {
	cfg := &Config{}

	cfg.Server.Addr = ":8000"
	cfg.Server.BodyLimit = 200 * MiB
	cfg.Server.CORSOrigins = []string{"http://localhost:8501"}

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	cfg.Store.Backend = StorePostgres
	cfg.Store.BoltPath = "data/docqa.db"
	cfg.Store.Postgres.Host = "localhost"
	cfg.Store.Postgres.Port = "5432"

	cfg.Upload.Dir = "data/uploads"
	cfg.Upload.MaxFileSize = 200 * MiB
	cfg.Upload.AllowedExtensions = []string{"pdf", "txt", "png", "jpg", "jpeg"}

	cfg.Chunking.ChunkSize = 1000
	cfg.Chunking.ChunkOverlap = 200
	cfg.Chunking.MinParagraphLength = 50

	cfg.Retrieval.NResults = types.DefaultSearchResults
	cfg.Retrieval.ChunksPerDocument = 3

	cfg.LLM.Provider = ProviderGoogleAI
	cfg.LLM.Temperature = 0.2
	cfg.LLM.Timeout = 60 * time.Second
	cfg.LLM.AnswerWorkers = 4

	cfg.OCR.Backend = OCRLLM
	cfg.OCR.MaxAttempts = 3
	cfg.OCR.MaxSide = 2048

	cfg.Loader.SourceDir = "data/inbox"
	cfg.Loader.ArchiveDir = "data/archive"
	cfg.Loader.BadDir = "data/bad"
	cfg.Loader.SettleTime = 2 * time.Second

	return cfg
}

// applyProviderDefaults fills the model names and vector size left empty
// with the ones the provider serves.
func applyProviderDefaults(cfg *Config) {
	llm := &cfg.LLM
	if llm.Provider == "" {
		llm.Provider = ProviderGoogleAI
	}

	var model, embedding string
	dim := 768
	switch llm.Provider {
	case ProviderOpenAI:
		model, embedding, dim = "gpt-4o-mini", "text-embedding-3-small", 1536
	case ProviderOllama:
		model, embedding = "llama3", "nomic-embed-text"
	default:
		model, embedding = "gemini-1.5-flash", "embedding-001"
	}

	if llm.Model == "" {
		llm.Model = model
	}
	if llm.EmbeddingModel == "" {
		llm.EmbeddingModel = embedding
	}
	if cfg.Store.Postgres.VectorDim == 0 {
		cfg.Store.Postgres.VectorDim = dim
	}
}

func mergeWithEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "SERVER_ADDR")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setString(&cfg.Store.BoltPath, "BOLT_PATH")
	setString(&cfg.Store.Postgres.Host, "PG_HOST")
	setString(&cfg.Store.Postgres.Port, "PG_PORT")
	setString(&cfg.Store.Postgres.User, "PG_USER")
	setString(&cfg.Store.Postgres.Password, "PG_PASS")
	setString(&cfg.Store.Postgres.Database, "PG_DB_NAME")

	setString(&cfg.Upload.Dir, "UPLOAD_DIR")
	setInt(&cfg.Chunking.ChunkSize, "CHUNK_SIZE")
	setInt(&cfg.Chunking.ChunkOverlap, "CHUNK_OVERLAP")

	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setString(&cfg.LLM.BaseURL, "LLM_URL")
	setString(&cfg.LLM.EmbeddingModel, "EMBEDDING_MODEL")

	switch cfg.LLM.Provider {
	case ProviderOpenAI:
		setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	case ProviderOllama:
		setString(&cfg.LLM.EmbeddingModel, "OLLAMA_EMBEDDING_MODEL")
		setString(&cfg.LLM.EmbeddingURL, "OLLAMA_EMBEDDING_URL")
	case ProviderGoogleAI, "":
		setString(&cfg.LLM.APIKey, "GEMINI_API_KEY")
	}
	setString(&cfg.LLM.APIKey, "LLM_API_KEY")

	setString(&cfg.OCR.Backend, "OCR_BACKEND")
	setString(&cfg.OCR.URL, "OLLAMA_VL_URL")
	setString(&cfg.OCR.Model, "OLLAMA_VL_MODEL")

	setString(&cfg.Loader.SourceDir, "LOADER_SOURCE_DIR")
	setString(&cfg.Loader.ArchiveDir, "LOADER_ARCHIVE_DIR")
	setString(&cfg.Loader.BadDir, "LOADER_BAD_DIR")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		*dst = n
	}
}

// PostgresConnString returns the DSN in the form pgxpool.New expects, with
// credentials escaped.
func (c *Config) PostgresConnString() string {
	pg := c.Store.Postgres
	host := pg.Host
	if pg.Port != "" {
		host = net.JoinHostPort(pg.Host, pg.Port)
	}
	u := url.URL{Scheme: "postgres", Host: host, Path: "/" + pg.Database}
	if pg.User != "" || pg.Password != "" {
		u.User = url.UserPassword(pg.User, pg.Password)
	}
	return u.String()
}
