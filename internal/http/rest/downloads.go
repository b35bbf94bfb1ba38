package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/comicaholic/genai-studio/internal/logctx"
	"github.com/comicaholic/genai-studio/internal/queue"
	"github.com/go-chi/chi/v5"
)

const maxRequestBody = 64 * 1024

// QueueService is the part of the queue manager the API exposes.
type QueueService interface {
	Enqueue(ctx context.Context, artifactID string) (string, error)
	Get(id string) (queue.Item, bool)
	List() queue.Lists
	Cancel(id string) bool
	Remove(id string) bool
	ClearCompleted() int
}

type EnqueueRequest struct {
	ArtifactID string `json:"artifact_id"`
}

type EnqueueResponse struct {
	ID string `json:"id"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ClearResponse struct {
	Removed int `json:"removed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type DownloadsHandler struct {
	queue QueueService
}

// NewDownloadsHandler creates a handler serving the download queue.
func NewDownloadsHandler(q QueueService) *DownloadsHandler {
	return &DownloadsHandler{queue: q}
}

// Routes is meant to be mounted at /api/downloads. Item ids contain the artifact's "/",
// so clients send them path-escaped.
func (h *DownloadsHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/", h.HandleEnqueue)
	r.Get("/", h.HandleList)
	r.Post("/clear-completed", h.HandleClearCompleted)
	r.Get("/{id}", h.HandleGet)
	r.Post("/{id}/cancel", h.HandleCancel)
	r.Delete("/{id}", h.HandleRemove)

	return r
}

// HandleEnqueue queues an artifact and answers with the item id.
func (h *DownloadsHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var req EnqueueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		logger.Debug("failed to decode request", "err", err)
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})

		return
	}

	id, err := h.queue.Enqueue(ctx, req.ArtifactID)

	switch {
	case errors.Is(err, queue.ErrInvalidArtifact):
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, queue.ErrClosed):
		writeJSON(ctx, w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	case err != nil:
		logger.Error("failed to enqueue artifact", "artifact_id", req.ArtifactID, "err", err)
		writeJSON(ctx, w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	default:
		writeJSON(ctx, w, http.StatusAccepted, EnqueueResponse{ID: id})
	}
}

// HandleList returns every item together with the active and completed views.
func (h *DownloadsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, h.queue.List())
}

// HandleGet returns one item.
func (h *DownloadsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := downloadID(w, r)
	if !ok {
		return
	}

	item, found := h.queue.Get(id)
	if !found {
		writeJSON(r.Context(), w, http.StatusNotFound, ErrorResponse{Error: "download not found"})

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, item)
}

// HandleCancel answers 409 when the item is unknown or already finished.
func (h *DownloadsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := downloadID(w, r)
	if !ok {
		return
	}

	status := http.StatusOK

	cancelled := h.queue.Cancel(id)
	if !cancelled {
		status = http.StatusConflict
	}

	writeJSON(r.Context(), w, status, SuccessResponse{Success: cancelled})
}

// HandleRemove deletes an item whatever its status.
func (h *DownloadsHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := downloadID(w, r)
	if !ok {
		return
	}

	if !h.queue.Remove(id) {
		writeJSON(r.Context(), w, http.StatusNotFound, SuccessResponse{Success: false})

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, SuccessResponse{Success: true})
}

// HandleClearCompleted drops completed items and reports how many were removed.
func (h *DownloadsHandler) HandleClearCompleted(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, ClearResponse{Removed: h.queue.ClearCompleted()})
}

// HandleHealth reports liveness.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func downloadID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		writeJSON(r.Context(), w, http.StatusBadRequest, ErrorResponse{Error: "invalid download id"})

		return "", false
	}

	return id, true
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to encode response", "err", err)
	}
}
