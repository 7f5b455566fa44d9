package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/bortube/gateway/internal/logging"
)

type actorKey struct{}

// Identity resolves a bearer access token into the acting user id. Requests
// without an Authorization header pass through anonymously; a header that
// does not verify is rejected with 401.
func Identity(verifier interface {
	Verify(accessToken string) (string, error)
}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				respondJSON(r.Context(), w, http.StatusUnauthorized, errorBody("invalid authorization header"))
				return
			}

			userID, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				logging.FromContext(r.Context()).Warn("access token rejected", "error", err)
				respondJSON(r.Context(), w, http.StatusUnauthorized, errorBody("invalid access token"))
				return
			}

			ctx := context.WithValue(r.Context(), actorKey{}, userID)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("user_id", userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the authenticated user id or "".
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// requireActor answers 401 and returns false when the request is anonymous.
func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := ActorFromContext(r.Context())
	if actor == "" {
		respondJSON(r.Context(), w, http.StatusUnauthorized, errorBody("authentication required"))
		return "", false
	}
	return actor, true
}
