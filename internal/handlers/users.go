package handlers

import (
	"net/http"
	"strings"

	"github.com/bortube/gateway/internal/auth"
	"github.com/bortube/gateway/internal/logging"
	"github.com/bortube/gateway/internal/users"
)

// UserHandler exposes account management. Every route except Create acts
// only on the caller's own account; List requires an administrator.
type UserHandler struct {
	Users UserService
}

// Create handles POST /api/users.
func (h UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req users.NewUser
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid signup payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("email, password and displayName are required"))
		return
	}

	user, err := h.Users.Create(ctx, req)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, user)
}

// List handles GET /api/users.
func (h UserHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	caller, err := h.Users.Get(ctx, actor)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if !caller.IsAdmin() {
		respondJSON(ctx, w, http.StatusForbidden, errorBody("administrator access required"))
		return
	}

	list, err := h.Users.List(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, list)
}

// Get handles GET /api/users/{id}.
func (h UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.self(w, r)
	if !ok {
		return
	}

	user, err := h.Users.Get(r.Context(), id)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, user)
}

// Update handles PUT /api/users/{id}.
func (h UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.self(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req users.Update
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if req.Empty() {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("no fields to update"))
		return
	}

	user, err := h.Users.Update(ctx, id, req)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, user)
}

// Delete handles DELETE /api/users/{id}.
func (h UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.self(w, r)
	if !ok {
		return
	}

	if _, err := h.Users.Delete(r.Context(), id); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h UserHandler) self(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if err := auth.Authorize(ActorFromContext(r.Context()), id); err != nil {
		respondError(r.Context(), w, err)
		return "", false
	}
	return id, true
}
