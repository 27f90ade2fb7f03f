package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bobarin/shortform/internal/apperr"
	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/models"
	"github.com/bobarin/shortform/internal/pipeline"
)

// maxRequestBody caps render request bodies at 10 MiB.
const maxRequestBody = 10 << 20

// Renderer runs one render request end to end.
type Renderer interface {
	Run(ctx context.Context, req *models.RenderRequest) (*pipeline.Result, error)
}

type Handler struct {
	renderer Renderer
}

func NewHandler(renderer Renderer) *Handler {
	return &Handler{renderer: renderer}
}

// RenderShortVideo handles POST /api/short-video/render
func (h *Handler) RenderShortVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RenderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		respondAppError(w, apperr.WithCorrelation(decodeError(err), logging.CorrelationID(ctx)))
		return
	}

	result, err := h.renderer.Run(ctx, &req)
	if err != nil {
		respondAppError(w, apperr.WithCorrelation(err, logging.CorrelationID(ctx)))
		return
	}

	if result.VideoURL != "" {
		respondJSON(w, http.StatusOK, models.RenderURLResponse{VideoURL: result.VideoURL})
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Video)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Video); err != nil {
		logging.FromContext(ctx).Warn("failed to write video response", "error", err)
	}
}

func decodeError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Validation("request body exceeds %d bytes", tooLarge.Limit)
	}
	return apperr.Validation("request body must be a JSON render request: %v", err)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondAppError(w http.ResponseWriter, err *apperr.Error) {
	respondJSON(w, apperr.HTTPStatus(err), models.ErrorResponse{
		Error:         apperr.PublicMessage(err),
		CorrelationID: err.CorrelationID,
	})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
