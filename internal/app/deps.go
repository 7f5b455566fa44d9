package app

import (
	"errors"
	"time"

	"github.com/bortube/gateway/internal/auth"
	"github.com/bortube/gateway/internal/config"
	"github.com/bortube/gateway/internal/events"
	"github.com/bortube/gateway/internal/handlers"
	"github.com/bortube/gateway/internal/middleware"
	"github.com/bortube/gateway/internal/rpc"
	"github.com/bortube/gateway/internal/uploads"
	"github.com/bortube/gateway/internal/users"
	"github.com/bortube/gateway/internal/videos"
)

// buildDependencies wires the gateway services over caller. The returned
// cleanup releases the event writer, when one was opened.
func buildDependencies(cfg config.Config, caller rpc.Caller, store auth.SessionStore) (handlers.Dependencies, func() error, error) {
	if caller == nil {
		return handlers.Dependencies{}, nil, errors.New("rpc caller is required")
	}
	if store == nil {
		return handlers.Dependencies{}, nil, errors.New("session store is required")
	}

	feed := videos.NewCachingService(videos.NewService(caller), cfg.Uploads.FeedCacheTTL)

	opts := []uploads.Option{uploads.WithMaxDuration(cfg.Uploads.MaxDuration)}
	cleanup := func() error { return nil }
	if cfg.Events.Enabled() {
		publisher := events.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		opts = append(opts, uploads.WithEvents(publisher))
		cleanup = publisher.Close
	}

	deps := handlers.Dependencies{
		Users:    users.NewService(caller),
		Sessions: auth.NewManager(cfg.Sessions.AccessTTL, cfg.Sessions.RefreshTTL, []byte(cfg.Sessions.JWTSecret), store),
		Feed:     feed,
		Videos:   uploads.NewCoordinator(feed, uploads.NewService(caller), opts...),

		TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
	}
	if cfg.RateLimit.LoginPerMinute > 0 {
		deps.LoginLimiter = middleware.NewKeyedLimiter(cfg.RateLimit.LoginPerMinute, time.Minute, cfg.RateLimit.LoginBurst, 10*time.Minute)
	}
	return deps, cleanup, nil
}
