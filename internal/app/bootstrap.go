package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"

	"docqa/internal/adapter/gemini"
	"docqa/internal/adapter/tesseract"
	"docqa/internal/apperr"
	"docqa/internal/chunkstore"
	"docqa/internal/config"
	"docqa/internal/extraction"
	"docqa/internal/qa"
)

type Dependencies struct {
	DB          *sql.DB
	NSQProducer *nsq.Producer
	Blobs       chunkstore.BlobStore
	Generator   qa.Generator
	Recognizer  extraction.Recognizer

	closers []func() error
}

// Close releases every client opened by Bootstrap, last opened first.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dependencies) onClose(fn func() error) {
	d.closers = append(d.closers, fn)
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}
	if err := deps.bootstrap(ctx, cfg); err != nil {
		if closeErr := deps.Close(); closeErr != nil {
			slog.Warn("failed to release partial dependencies", "error", closeErr)
		}
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) bootstrap(ctx context.Context, cfg *config.Config) error {
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// Database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	d.DB = db
	d.onClose(db.Close)

	if err := WithRetry(ctx, "db ping", cfg.BootstrapRetryAttempts, retryDelay, func() error {
		return db.PingContext(ctx)
	}); err != nil {
		return fmt.Errorf("failed to ping db: %w", err)
	}

	if err := migrateUp(db, cfg.MigrationPath); err != nil {
		return err
	}

	// Chunk storage
	blobs, closeBlobs, err := NewBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("chunk store error: %w", err)
	}
	d.Blobs = blobs
	if closeBlobs != nil {
		d.onClose(closeBlobs)
	}

	// Models
	gem, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:      cfg.GeminiAPIKey,
		TextModel:   cfg.GeminiModel,
		VisionModel: cfg.GeminiVisionModel,
	})
	switch {
	case errors.Is(err, gemini.ErrMissingAPIKey):
		slog.Warn("GEMINI_API_KEY not set, questions will fail until it is configured")
		d.Generator = offlineGenerator{}
	case err != nil:
		return fmt.Errorf("gemini client error: %w", err)
	default:
		d.Generator = gem
		d.onClose(gem.Close)
	}

	rec, closeRec, err := NewRecognizer(cfg, gem)
	if err != nil {
		return fmt.Errorf("recognizer error: %w", err)
	}
	d.Recognizer = rec
	if closeRec != nil {
		d.onClose(closeRec)
	}

	// NSQ Producer
	if cfg.EnableIngestWorker {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			return fmt.Errorf("nsq producer error: %w", err)
		}
		d.NSQProducer = producer
		d.onClose(func() error {
			producer.Stop()
			return nil
		})
		createTopics(cfg.NSQDHTTP)
	}

	return nil
}

func migrateUp(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

// NewBlobStore selects the durable chunk store named by CHUNK_STORE. The
// returned close func may be nil.
func NewBlobStore(ctx context.Context, cfg *config.Config) (chunkstore.BlobStore, func() error, error) {
	switch cfg.ChunkStore {
	case config.ChunkStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		delay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
		if err := WithRetry(ctx, "redis ping", cfg.BootstrapRetryAttempts, delay, func() error {
			return client.Ping(ctx).Err()
		}); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return chunkstore.NewRedisBlobStore(client, ""), client.Close, nil

	case config.ChunkStoreS3:
		client, err := chunkstore.NewS3Client(ctx, chunkstore.S3Config{
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		return chunkstore.NewS3BlobStore(client, cfg.S3Bucket, cfg.S3Prefix), nil, nil

	default:
		store, err := chunkstore.NewFSBlobStore(cfg.ChunkDir)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

// NewRecognizer selects the image text recognizer named by RECOGNIZER. A nil
// recognizer means image-only pages get a placeholder.
func NewRecognizer(cfg *config.Config, gem *gemini.Client) (extraction.Recognizer, func() error, error) {
	switch cfg.Recognizer {
	case config.RecognizerNone:
		return nil, nil, nil
	case config.RecognizerTesseract:
		rec, err := tesseract.New(cfg.TesseractLang)
		if errors.Is(err, tesseract.ErrOCRNotEnabled) {
			slog.Warn("tesseract requested but binary built without ocr tag, image pages will use placeholders")
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return rec, rec.Close, nil
	default:
		if gem == nil {
			slog.Warn("no gemini client, image pages will use placeholders")
			return nil, nil, nil
		}
		return gem, nil, nil
	}
}

// WithRetry calls fn up to attempts times, sleeping delay between failures.
func WithRetry(ctx context.Context, what string, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	attempt := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	return backoff.RetryNotify(func() error {
		attempt++
		return fn()
	}, policy, func(err error, _ time.Duration) {
		slog.Warn("bootstrap step failed, retrying...", "step", what, "attempt", attempt, "error", err)
	})
}

func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicIngestDocument)
	}()
}

type offlineGenerator struct{}

func (offlineGenerator) Generate(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: %w", apperr.ErrUpstream, gemini.ErrMissingAPIKey)
}
