package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"docqa/internal/middleware"
)

type DocumentRepo interface {
	Count(ctx context.Context) (int, error)
	CountProcessed(ctx context.Context) (int, error)
}

type JobRepo interface {
	Count(ctx context.Context) (int, error)
}

// ChunkCache reports how many chunk sets are held in memory.
type ChunkCache interface {
	CachedSets() int
}

type Handler struct {
	docRepo DocumentRepo
	jobRepo JobRepo
	cache   ChunkCache
}

func NewHandler(d DocumentRepo, j JobRepo, c ChunkCache) *Handler {
	return &Handler{docRepo: d, jobRepo: j, cache: c}
}

type StatsResponse struct {
	Documents       int `json:"documents"`
	Processed       int `json:"processed"`
	FailedJobs      int `json:"failed_jobs"`
	CachedChunkSets int `json:"cached_chunk_sets"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dCount, err := h.docRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	pCount, err := h.docRepo.CountProcessed(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count processed documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count processed documents", http.StatusInternalServerError)
		return
	}

	jCount, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Documents:       dCount,
		Processed:       pCount,
		FailedJobs:      jCount,
		CachedChunkSets: h.cache.CachedSets(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
