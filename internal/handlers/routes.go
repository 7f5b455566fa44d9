package handlers

import (
	"net/http"

	"github.com/bortube/gateway/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users        UserService
	Sessions     SessionManager
	Feed         VideoFeed
	Videos       VideoWorkflow
	LoginLimiter middleware.RateLimiter

	// TrustForwardedFor keys the login limiter on X-Forwarded-For. Enable
	// only behind a proxy that sets the header.
	TrustForwardedFor bool
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	authH := AuthHandler{Users: deps.Users, Sessions: deps.Sessions}
	usersH := UserHandler{Users: deps.Users}
	videosH := VideoHandler{Feed: deps.Feed, Workflow: deps.Videos}

	mux.HandleFunc("GET /healthz", health.Handle)
	mux.HandleFunc("GET /{$}", health.Welcome)

	clientKey := middleware.RemoteIP
	if deps.TrustForwardedFor {
		clientKey = middleware.ForwardedIP
	}

	mux.Handle("POST /api/login", middleware.Limit(deps.LoginLimiter, "login", clientKey)(http.HandlerFunc(authH.Login)))
	mux.HandleFunc("POST /api/refresh", authH.Refresh)
	mux.HandleFunc("POST /api/logout", authH.Logout)

	mux.HandleFunc("POST /api/users", usersH.Create)
	mux.HandleFunc("GET /api/users", usersH.List)
	mux.HandleFunc("GET /api/users/{id}", usersH.Get)
	mux.HandleFunc("PUT /api/users/{id}", usersH.Update)
	mux.HandleFunc("DELETE /api/users/{id}", usersH.Delete)

	mux.HandleFunc("GET /api/videos", videosH.List)
	mux.HandleFunc("POST /api/videos", videosH.Create)
	mux.HandleFunc("GET /api/videos/{id}", videosH.Get)
	mux.HandleFunc("PUT /api/videos/{id}", videosH.Update)
	mux.HandleFunc("DELETE /api/videos/{id}", videosH.Delete)
	mux.HandleFunc("POST /api/videos/{id}/confirm", videosH.Confirm)
}

// NewRouter builds the gateway's route table behind bearer identity
// resolution.
func NewRouter(deps Dependencies) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)

	var verifier interface {
		Verify(accessToken string) (string, error)
	}
	if deps.Sessions != nil {
		verifier = deps.Sessions
	}
	return Identity(verifier)(mux)
}
