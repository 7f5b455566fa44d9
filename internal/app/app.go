package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bortube/gateway/internal/auth"
	"github.com/bortube/gateway/internal/broker"
	"github.com/bortube/gateway/internal/config"
	"github.com/bortube/gateway/internal/db"
	"github.com/bortube/gateway/internal/handlers"
	"github.com/bortube/gateway/internal/httpserver"
	"github.com/bortube/gateway/internal/middleware"
	"github.com/bortube/gateway/internal/repositories"
	"github.com/bortube/gateway/internal/rpc"
	"github.com/bortube/gateway/internal/storage"
	"github.com/bortube/gateway/internal/uploadworker"
)

const sessionPurgeInterval = time.Hour

// Run bootstraps the BorTube gateway.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, upload-worker, or migrate")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "upload-worker":
		return runUploadWorker(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func newLogger(level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true, Level: parseLevel(level)}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	ctx, stop := signalContext(ctx)
	defer stop()

	conn, err := broker.Dial(cfg.Broker.URL, cfg.Broker.ConnectionName, logger)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer conn.Close()

	transport := broker.NewTransport(conn, logger)
	defer transport.Close()

	client := rpc.NewClient(transport, rpc.WithDefaultTimeout(cfg.Broker.RPCTimeout), rpc.WithLogger(logger))
	defer client.Close()

	store, closeStore, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	deps, cleanup, err := buildDependencies(cfg, client, store)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn("close dependencies", "error", err)
		}
	}()

	handler := middleware.Chain(handlers.NewRouter(deps),
		middleware.RequestLogger(logger),
		middleware.CORS(cfg.HTTP.CORSOrigin),
	)
	srv := httpserver.New(cfg.AppPort, handler, cfg.HTTP)

	logger.Info("starting http server", "port", cfg.AppPort)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down http server")
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	return srv.Shutdown(context.Background())
}

// openSessionStore picks Postgres when a database is configured and keeps
// sessions in memory otherwise.
func openSessionStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (auth.SessionStore, func(), error) {
	if cfg.Sessions.DatabaseURL == "" {
		logger.Warn("no session database configured, refresh tokens are kept in memory")
		return auth.NewInMemorySessionStore(), func() {}, nil
	}

	pool, err := db.Connect(ctx, cfg.Sessions.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	store := repositories.NewPostgresSessionStore(pool)
	go purgeExpiredSessions(ctx, store, sessionPurgeInterval, logger)
	return store, pool.Close, nil
}

type expiredSessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

func purgeExpiredSessions(ctx context.Context, store expiredSessionPurger, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.DeleteExpired(ctx, time.Now())
			if err != nil {
				logger.Warn("purge expired sessions", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("purged expired sessions", "count", removed)
			}
		}
	}
}

func runUploadWorker(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	ctx, stop := signalContext(ctx)
	defer stop()

	store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return err
	}

	conn, err := broker.Dial(cfg.Broker.URL, cfg.Broker.ConnectionName+"-upload-worker", logger)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer conn.Close()

	server := broker.NewServer(conn, logger, broker.WithPrefetch(cfg.Broker.Prefetch))
	defer server.Close()

	uploadworker.New(store, cfg.Uploads.MaxDuration).Register(server)

	logger.Info("starting upload worker", "bucket", cfg.ObjectStore.Bucket)
	return server.Serve(ctx)
}
