package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	ChunkStoreFS    = "fs"
	ChunkStoreRedis = "redis"
	ChunkStoreS3    = "s3"

	RecognizerGemini    = "gemini"
	RecognizerTesseract = "tesseract"
	RecognizerNone      = "none"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"docqa"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"docqa"`

	NSQLookupd    string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost      string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP      string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQMaxMsgSize int64  `envconfig:"NSQ_MAX_MSG_SIZE" default:"10485760"` // 10MB

	EnableAPI          bool          `envconfig:"ENABLE_API" default:"true"`
	EnableIngestWorker bool          `envconfig:"ENABLE_INGEST_WORKER" default:"false"`
	IngestConcurrency  int           `envconfig:"INGEST_CONCURRENCY" default:"4"`
	IngestMaxAttempts  uint16        `envconfig:"INGEST_MAX_ATTEMPTS" default:"3"`
	IngestTimeout      time.Duration `envconfig:"INGEST_TIMEOUT" default:"10m"`
	MigrationPath      string        `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	PublicURL       string `envconfig:"PUBLIC_URL" default:"http://localhost:8000"`
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8000"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	StoragePath     string `envconfig:"STORAGE_PATH" default:"./storage/uploads"`

	// Chunk storage
	ChunkStore    string `envconfig:"CHUNK_STORE" default:"fs"`
	ChunkDir      string `envconfig:"CHUNK_DIR" default:"./storage/documents"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	S3Bucket      string `envconfig:"S3_BUCKET"`
	S3Prefix      string `envconfig:"S3_PREFIX" default:"chunks/"`
	S3Region      string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint    string `envconfig:"S3_ENDPOINT"`
	S3PathStyle   bool   `envconfig:"S3_PATH_STYLE" default:"false"`

	// Models
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	GeminiModel       string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-pro"`
	GeminiVisionModel string `envconfig:"GEMINI_VISION_MODEL" default:"gemini-1.5-flash"`
	Recognizer        string `envconfig:"RECOGNIZER" default:"gemini"`
	TesseractLang     string `envconfig:"TESSERACT_LANG" default:"eng"`

	// Rate limiting and extraction
	RequestsPerMinute     int           `envconfig:"REQUESTS_PER_MINUTE" default:"60"`
	TokensPerMinute       int           `envconfig:"TOKENS_PER_MINUTE" default:"60000"`
	MaxConcurrentRequests int           `envconfig:"MAX_CONCURRENT_REQUESTS" default:"10"`
	RenderWorkers         int           `envconfig:"RENDER_WORKERS" default:"0"`
	RenderDPI             int           `envconfig:"RENDER_DPI" default:"150"`
	MinPageTextChars      int           `envconfig:"MIN_PAGE_TEXT_CHARS" default:"50"`
	ThrottleBackoff       time.Duration `envconfig:"THROTTLE_BACKOFF" default:"60s"`

	// Answering
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`
	TopK         int `envconfig:"TOP_K" default:"3"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}

	switch c.ChunkStore {
	case ChunkStoreFS, "":
	case ChunkStoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: REDIS_ADDR", ErrMissingRequired)
		}
	case ChunkStoreS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: S3_BUCKET", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: CHUNK_STORE=%q", ErrInvalidValue, c.ChunkStore)
	}

	switch c.Recognizer {
	case RecognizerGemini, RecognizerTesseract, RecognizerNone, "":
	default:
		return fmt.Errorf("%w: RECOGNIZER=%q", ErrInvalidValue, c.Recognizer)
	}

	if c.ChunkSize > 0 && (c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize) {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalidValue)
	}
	return nil
}
