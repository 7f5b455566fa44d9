package uploadworker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/broker"
	"github.com/bortube/gateway/internal/logging"
	"github.com/bortube/gateway/internal/storage"
	"github.com/bortube/gateway/internal/uploads"
)

// BlobStore is the object store the worker fronts.
type BlobStore interface {
	PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error)
	Stat(ctx context.Context, key string) (storage.ObjectInfo, error)
}

// Registrar accepts operation handlers; broker.Server implements it.
type Registrar interface {
	Handle(operation string, h broker.Handler)
}

// Worker serves the upload service operations against a BlobStore.
type Worker struct {
	store       BlobStore
	maxDuration int
}

// New builds a Worker. maxDuration caps the requested upload window in seconds.
func New(store BlobStore, maxDuration int) *Worker {
	if maxDuration <= 0 {
		maxDuration = uploads.DefaultMaxDuration
	}
	return &Worker{store: store, maxDuration: maxDuration}
}

// Register binds the worker's operations.
func (w *Worker) Register(r Registrar) {
	r.Handle(uploads.OpGetUploadURL, w.GetUploadURL)
	r.Handle(uploads.OpCheckUploadState, w.CheckUploadState)
}

// GetUploadURL presigns a PUT for the requested blob.
func (w *Worker) GetUploadURL(ctx context.Context, body []byte) (any, error) {
	const op = uploads.OpGetUploadURL

	var req uploads.UploadURLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperr.InvalidInput(op, "malformed request")
	}
	if !validKey(req.BlobName) {
		return nil, apperr.InvalidInput(op, "blobName is required and must not contain path separators")
	}
	if req.Duration <= 0 {
		return nil, apperr.InvalidInput(op, "duration must be positive")
	}

	duration := req.Duration
	if duration > w.maxDuration {
		duration = w.maxDuration
	}

	url, err := w.store.PresignPut(ctx, req.BlobName, time.Duration(duration)*time.Second)
	if err != nil {
		return nil, apperr.Internal(op, "could not issue upload url", err)
	}

	logging.FromContext(ctx).Info("issued upload url", "blob", req.BlobName, "duration_seconds", duration)
	return uploads.UploadURLReply{URL: url}, nil
}

// CheckUploadState reports whether the video file was uploaded and is non-empty.
func (w *Worker) CheckUploadState(ctx context.Context, body []byte) (any, error) {
	const op = uploads.OpCheckUploadState

	var req uploads.UploadStateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperr.InvalidInput(op, "malformed request")
	}
	if req.VideoID == "" || req.VideoFileID == "" {
		return nil, apperr.InvalidInput(op, "videoId and videoFileId are required")
	}
	if !validKey(req.FileName) {
		return nil, apperr.InvalidInput(op, "fileName is required and must not contain path separators")
	}

	blob := uploads.BlobName(req.VideoID.String(), req.FileName)
	info, err := w.store.Stat(ctx, blob)
	if err != nil {
		return nil, apperr.Internal(op, "could not inspect upload", err)
	}

	uploaded := info.Exists && info.Size > 0
	logging.FromContext(ctx).Debug("checked upload", "blob", blob, "uploaded", uploaded, "size", info.Size)
	return map[string]bool{"uploadState": uploaded}, nil
}

func validKey(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && !strings.ContainsAny(name, `/\`) && name != "." && name != ".."
}
