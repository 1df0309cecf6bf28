package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"docqa/features/document"
	"docqa/features/job"
	"docqa/features/mcp"
	"docqa/features/stats"
	"docqa/internal/adapter/pdf"
	"docqa/internal/chunkstore"
	"docqa/internal/config"
	"docqa/internal/extraction"
	"docqa/internal/metrics"
	"docqa/internal/middleware"
	"docqa/internal/qa"
	"docqa/internal/ratelimit"
	"docqa/internal/retrieval"
	"docqa/internal/worker"
)

// Publisher is satisfied by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

type Options struct {
	DB         *sql.DB
	Blobs      chunkstore.BlobStore
	Generator  qa.Generator
	Recognizer extraction.Recognizer
	// Publisher queues uploads for the ingest worker. When nil uploads are
	// processed inside the request.
	Publisher Publisher
}

type App struct {
	Handler        http.Handler
	Documents      *document.Service
	Jobs           *job.Service
	IngestConsumer *worker.IngestConsumer

	port int
}

func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.DB == nil || opts.Blobs == nil || opts.Generator == nil {
		return nil, fmt.Errorf("app: db, chunk store and generator are required")
	}

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		TokensPerMinute:   cfg.TokensPerMinute,
		MaxConcurrent:     cfg.MaxConcurrentRequests,
	})

	// Feature: Answering
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	qaService := qa.NewService(qa.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		TopK:         cfg.TopK,
	}, chunkstore.NewCache(), chunkstore.NewStore(opts.Blobs), opts.Generator, limiter, queryLogger)

	// Feature: Extraction
	extractor := extraction.NewExtractor(extraction.Config{
		MinTextChars:    cfg.MinPageTextChars,
		ThrottleBackoff: cfg.ThrottleBackoff,
		RenderWorkers:   cfg.RenderWorkers,
	}, limiter, opts.Recognizer)

	// Feature: Document
	docRepo := document.NewPostgresRepo(opts.DB)
	docService := document.NewService(docRepo, pdf.NewLoader(cfg.RenderDPI), extraction.NewPipeline(extractor), qaService, opts.Publisher)
	docHandler := document.NewHandler(docService, cfg.StoragePath, cfg.MaxUploadSizeMB)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(opts.DB)
	jobService := job.NewService(jobRepo, opts.Publisher)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(docRepo, jobRepo, qaService)

	// Feature: MCP
	mcpSSE := mcp.NewSSEHandler(mcp.NewServer(docService, docService), cfg.PublicURL)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /documents/upload", middleware.CorrelationID(enableCORS(docHandler.Upload)))
	mux.Handle("POST /documents/question", middleware.CorrelationID(enableCORS(docHandler.Ask)))
	mux.Handle("POST /documents/cleanup", middleware.CorrelationID(enableCORS(docHandler.Cleanup)))
	mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(docHandler.List)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(docHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(docHandler.Delete)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.Handle("GET "+mcp.SSEPath, middleware.CorrelationID(enableCORS(mcpSSE.ServeHTTP)))
	mux.Handle("POST "+mcp.MessagePath, middleware.CorrelationID(enableCORS(mcpSSE.ServeHTTP)))

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:        middleware.Recover(mux),
		Documents:      docService,
		Jobs:           jobService,
		IngestConsumer: worker.NewIngestConsumer(docService, jobService, cfg.IngestMaxAttempts, cfg.IngestTimeout),
		port:           cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
