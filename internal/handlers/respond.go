package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/logging"
)

const internalErrorMessage = "internal server error"

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondError renders err with the status of its kind. Internal failures
// are logged in full and answered with a fixed message.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	message := apperr.Message(err)
	if apperr.KindOf(err) == apperr.KindInternal || status >= http.StatusInternalServerError {
		logging.FromContext(ctx).Error("handler error", "error", err)
		message = internalErrorMessage
	}
	respondJSON(ctx, w, status, errorBody(message))
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(dst)
}
