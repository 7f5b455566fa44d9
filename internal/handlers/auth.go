package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/auth"
	"github.com/bortube/gateway/internal/logging"
	"github.com/bortube/gateway/internal/models"
)

// AuthHandler implements login and session endpoints.
type AuthHandler struct {
	Users    UserService
	Sessions SessionManager
}

// Login handles POST /api/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, errorBody("authentication services unavailable"))
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("email and password are required"))
		return
	}

	user, err := h.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			logger.Warn("login rejected", "email", req.Email)
			respondJSON(ctx, w, http.StatusUnauthorized, errorBody("invalid credentials"))
			return
		}
		respondError(ctx, w, err)
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, errorBody("failed to create session"))
		return
	}

	respondJSON(ctx, w, http.StatusOK, loginResponse{Message: "Login successful", UserID: user.ID, Tokens: tokens})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil {
		logger.Error("session manager unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, errorBody("session service unavailable"))
		return
	}

	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, token)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) {
			status = http.StatusUnauthorized
		}
		logger.Warn("refresh failed", "error", err, "status", status)
		respondJSON(ctx, w, status, errorBody("unable to refresh session"))
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// Logout revokes a refresh token. Unknown tokens are accepted silently.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Sessions == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, errorBody("session service unavailable"))
		return
	}

	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}

	h.Sessions.Revoke(ctx, token)
	w.WriteHeader(http.StatusNoContent)
}

func (h AuthHandler) refreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid refresh payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("invalid request body"))
		return "", false
	}

	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("refresh token is required"))
		return "", false
	}
	return token, true
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	Message string               `json:"message"`
	UserID  string               `json:"userId"`
	Tokens  models.SessionTokens `json:"tokens"`
}

type authResponse struct {
	Tokens models.SessionTokens `json:"tokens"`
}
