package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"docqa/internal/apperr"
	"docqa/internal/middleware"
)

type Handler struct {
	service        *Service
	storageDir     string
	maxUploadBytes int64
}

func NewHandler(service *Service, storageDir string, maxUploadMB int64) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &Handler{service: service, storageDir: storageDir, maxUploadBytes: maxUploadMB << 20}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "File too large or malformed form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		h.writeError(ctx, w, "BAD_REQUEST", "Only PDF files are allowed", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.storageDir, 0o750); err != nil {
		slog.ErrorContext(ctx, "failed to create storage directory", "error", err, "path", filepath.Clean(h.storageDir))
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to create storage directory", http.StatusInternalServerError)
		return
	}

	path := filepath.Clean(filepath.Join(h.storageDir, fmt.Sprintf("%s_%s", uuid.New().String(), name)))
	if err := saveFile(path, file); err != nil {
		slog.ErrorContext(ctx, "failed to save upload", "error", err, "path", path)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to save file", http.StatusInternalServerError)
		return
	}

	doc, err := h.service.Upload(ctx, name, path)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			if removeErr := os.Remove(path); removeErr != nil { // #nosec G304 -- path is UUID-based
				slog.WarnContext(ctx, "failed to clean up uploaded file", "error", removeErr, "path", path)
			}
		} else {
			slog.ErrorContext(ctx, "upload processing failed", "error", err, "filename", name)
		}
		h.writeServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func saveFile(path string, src io.Reader) error {
	dst, err := os.Create(path) // #nosec G304 -- path is constructed from UUID + sanitized basename
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Question   string `json:"question"`
		DocumentID string `json:"document_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	answer, err := h.service.Ask(ctx, req.Question, req.DocumentID)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": answer}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context())
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	if docs == nil {
		docs = []Document{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.Cleanup(r.Context())
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]int{"removed": removed}}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// ErrorStatus maps a service error onto an API error code and HTTP status.
func ErrorStatus(err error) (string, int) {
	switch {
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrNotProcessed):
		return "CONFLICT", http.StatusConflict
	case errors.Is(err, apperr.ErrNotFound):
		return "NOT_FOUND", http.StatusNotFound
	case errors.Is(err, apperr.ErrExtraction):
		return "EXTRACTION_FAILED", http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrValidation):
		return "VALIDATION_ERROR", http.StatusBadRequest
	case errors.Is(err, apperr.ErrThrottled):
		return "RATE_LIMITED", http.StatusTooManyRequests
	case errors.Is(err, apperr.ErrUpstream):
		return "UPSTREAM_ERROR", http.StatusBadGateway
	default:
		return "INTERNAL_ERROR", http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	code, status := ErrorStatus(err)
	msg := err.Error()
	switch status {
	case http.StatusNotFound:
		msg = "Document not found"
	case http.StatusInternalServerError:
		slog.ErrorContext(ctx, "request failed", "error", err)
		msg = "Internal Server Error"
	}
	h.writeError(ctx, w, code, msg, status)
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
