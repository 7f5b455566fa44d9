package handlers

import (
	"net/http"
	"strings"

	"github.com/bortube/gateway/internal/logging"
	"github.com/bortube/gateway/internal/models"
	"github.com/bortube/gateway/internal/uploads"
	"github.com/bortube/gateway/internal/videos"
)

// VideoHandler exposes the video feed and the upload workflow.
type VideoHandler struct {
	Feed     VideoFeed
	Workflow VideoWorkflow
}

// List handles GET /api/videos.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.Feed.ListVisible(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if list == nil {
		list = []models.Video{}
	}
	respondJSON(ctx, w, http.StatusOK, list)
}

// Get handles GET /api/videos/{id}.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, err := h.Workflow.View(ctx, ActorFromContext(ctx), r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, video)
}

// Create handles POST /api/videos. The response carries the upload target
// the client must PUT the file to before confirming.
func (h VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req createVideoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid video payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	created, err := h.Workflow.Create(ctx, uploads.CreateRequest{
		UserID:      actor,
		Title:       req.Title,
		Description: req.Description,
		FileName:    req.FileName,
		Duration:    req.Duration,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, created)
}

// Update handles PUT /api/videos/{id}.
func (h VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req videos.Update
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	video, err := h.Workflow.Update(ctx, actor, r.PathValue("id"), req)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, video)
}

// Delete handles DELETE /api/videos/{id}.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if _, err := h.Workflow.Delete(r.Context(), actor, r.PathValue("id")); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Confirm handles POST /api/videos/{id}/confirm.
func (h VideoHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	video, err := h.Workflow.Confirm(ctx, actor, r.PathValue("id"), strings.TrimSpace(req.FileName))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, video)
}

type createVideoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	FileName    string `json:"fileName"`
	Duration    int    `json:"duration"`
}

type confirmRequest struct {
	FileName string `json:"fileName"`
}
