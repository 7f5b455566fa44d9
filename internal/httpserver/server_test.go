package httpserver

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bortube/gateway/internal/config"
)

func TestNewAppliesDefaults(t *testing.T) {
	srv := New(8080, http.NotFoundHandler(), config.HTTPConfig{})

	if srv.Addr() != ":8080" {
		t.Fatalf("unexpected addr %q", srv.Addr())
	}
	if srv.inner.ReadHeaderTimeout != DefaultReadHeaderTimeout {
		t.Fatalf("expected default read header timeout got %s", srv.inner.ReadHeaderTimeout)
	}
	if srv.inner.WriteTimeout != DefaultWriteTimeout {
		t.Fatalf("expected default write timeout got %s", srv.inner.WriteTimeout)
	}
}

func TestNewUsesConfig(t *testing.T) {
	srv := New(9000, http.NotFoundHandler(), config.HTTPConfig{
		ReadHeaderTimeout: time.Second,
		WriteTimeout:      2 * time.Second,
		ShutdownTimeout:   3 * time.Second,
	})

	if srv.inner.ReadHeaderTimeout != time.Second || srv.inner.WriteTimeout != 2*time.Second {
		t.Fatalf("config timeouts not applied: %+v", srv.inner)
	}
	if srv.shutdownTimeout.or(DefaultShutdownTimeout) != 3*time.Second {
		t.Fatalf("unexpected shutdown timeout")
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	srv := New(0, http.NotFoundHandler(), config.HTTPConfig{})
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown of idle server: %v", err)
	}
}
