package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/viewtally/viewtally/internal/handler/dto"
	"github.com/viewtally/viewtally/internal/model"
	"github.com/viewtally/viewtally/internal/repository"
)

// ContentHandler manages the content registry. Registration and deletion sit
// behind admin auth; deletion cascades to every counted view row.
type ContentHandler struct {
	repo   *repository.Repository
	logger *slog.Logger
}

// NewContentHandler creates a new ContentHandler.
func NewContentHandler(repo *repository.Repository, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		repo:   repo,
		logger: logger.With("component", "handler.content"),
	}
}

// Create handles POST /api/v1/content.
func (h *ContentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	if req.ID <= 0 {
		h.writeError(w, http.StatusBadRequest, "INVALID_ID", "Content ID must be a positive integer")
		return
	}
	if req.ContentType == "" {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "content_type is required")
		return
	}

	now := time.Now().UTC()
	published := now
	if req.PublishedAt != nil {
		published = req.PublishedAt.UTC()
	}

	content := &model.Content{
		ID:          req.ID,
		ContentType: req.ContentType,
		Title:       req.Title,
		PublishedAt: published,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.repo.CreateContent(r.Context(), content); err != nil {
		if errors.Is(err, repository.ErrContentExists) {
			h.writeError(w, http.StatusConflict, "CONTENT_EXISTS", "Content is already registered")
			return
		}
		h.logger.Error("failed to create content", "content_id", req.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register content")
		return
	}

	h.logger.Info("content registered", "content_id", content.ID, "content_type", content.ContentType)
	writeJSON(w, http.StatusCreated, dto.ToContentResponse(content))
}

// Get handles GET /api/v1/content/{id}.
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contentID(w, r)
	if !ok {
		return
	}

	content, err := h.repo.GetContentByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrContentNotFound) {
			h.writeError(w, http.StatusNotFound, "CONTENT_NOT_FOUND", "Content not found")
			return
		}
		h.logger.Error("failed to get content", "content_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch content")
		return
	}

	writeJSON(w, http.StatusOK, dto.ToContentResponse(content))
}

// Delete handles DELETE /api/v1/content/{id}. View rows for the content are
// removed in the same transaction.
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contentID(w, r)
	if !ok {
		return
	}

	if err := h.repo.DeleteContent(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrContentNotFound) {
			h.writeError(w, http.StatusNotFound, "CONTENT_NOT_FOUND", "Content not found")
			return
		}
		h.logger.Error("failed to delete content", "content_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete content")
		return
	}

	h.logger.Info("content deleted", "content_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContentHandler) contentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "INVALID_ID", "Content ID must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *ContentHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
