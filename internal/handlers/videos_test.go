package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/models"
	"github.com/bortube/gateway/internal/uploads"
	"github.com/bortube/gateway/internal/videos"
)

type memVideos struct {
	mu     sync.Mutex
	seq    int
	videos map[string]models.Video
}

func newMemVideos() *memVideos {
	return &memVideos{videos: make(map[string]models.Video)}
}

func (m *memVideos) ListVisible(context.Context) ([]models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Video
	for _, v := range m.videos {
		if v.Visible() {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memVideos) Get(_ context.Context, id string) (models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return models.Video{}, apperr.NotFound(videos.OpGet, "video not found")
	}
	return v, nil
}

func (m *memVideos) Create(_ context.Context, in videos.NewVideo) (videos.Created, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	fileID := models.ObjectID(fmt.Sprintf("file-%d", m.seq))
	v := models.Video{
		ID:          models.ObjectID(fmt.Sprintf("v%d", m.seq)),
		UserID:      in.UserID,
		Title:       in.Title,
		Description: in.Description,
		State:       models.VideoStateUploading,
		FileID:      &fileID,
	}
	m.videos[v.ID.String()] = v
	return videos.Created{Video: v}, nil
}

func (m *memVideos) Update(_ context.Context, id string, in videos.Update) (models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return models.Video{}, apperr.NotFound(videos.OpUpdate, "video not found")
	}
	if in.Title != nil {
		v.Title = *in.Title
	}
	if in.Description != nil {
		v.Description = *in.Description
	}
	if in.State != nil {
		v.State = *in.State
	}
	m.videos[id] = v
	return v, nil
}

func (m *memVideos) Delete(_ context.Context, id string) (models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return models.Video{}, apperr.NotFound(videos.OpDelete, "video not found")
	}
	delete(m.videos, id)
	return v, nil
}

type uploaderStub struct {
	uploaded bool
}

func (u *uploaderStub) GetUploadURL(_ context.Context, videoID, fileName string, _ int) (string, error) {
	return "https://blobs.example/" + uploads.BlobName(videoID, fileName), nil
}

func (u *uploaderStub) CheckUploadState(context.Context, models.ObjectID, models.ObjectID, string) (bool, error) {
	return u.uploaded, nil
}

func newVideoRouter(store *memVideos, uploader *uploaderStub) (http.Handler, func(t *testing.T, userID string) string) {
	sessions := newSessions()
	router := NewRouter(Dependencies{
		Sessions: sessions,
		Feed:     store,
		Videos:   uploads.NewCoordinator(store, uploader),
	})
	return router, func(t *testing.T, userID string) string { return bearer(t, sessions, userID) }
}

func TestVideoUploadLifecycle(t *testing.T) {
	store := newMemVideos()
	uploader := &uploaderStub{}
	router, tokenFor := newVideoRouter(store, uploader)
	owner := tokenFor(t, "u1")

	rec := do(t, router, http.MethodPost, "/api/videos", owner, createVideoRequest{Title: "Cats", FileName: "cats.mp4", Duration: 600})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[videos.Created](t, rec)
	if created.UploadTargetURL != "https://blobs.example/v1_cats.mp4" {
		t.Fatalf("unexpected upload target %q", created.UploadTargetURL)
	}
	if created.Video.UserID != "u1" || created.Video.State != models.VideoStateUploading {
		t.Fatalf("unexpected created video %+v", created.Video)
	}

	if rec := do(t, router, http.MethodGet, "/api/videos/v1", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected uploading video hidden from anonymous callers got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodGet, "/api/videos/v1", owner, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected owner to see uploading video got %d", rec.Code)
	}

	if rec := do(t, router, http.MethodPost, "/api/videos/v1/confirm", owner, confirmRequest{FileName: "cats.mp4"}); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected confirm before upload to fail got %d", rec.Code)
	}

	uploader.uploaded = true
	rec = do(t, router, http.MethodPost, "/api/videos/v1/confirm", owner, confirmRequest{FileName: "cats.mp4"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected confirm to succeed got %d: %s", rec.Code, rec.Body.String())
	}
	if v := decode[models.Video](t, rec); !v.Visible() {
		t.Fatalf("expected visible video got %+v", v)
	}

	rec = do(t, router, http.MethodGet, "/api/videos", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected feed got %d", rec.Code)
	}
	if feed := decode[[]models.Video](t, rec); len(feed) != 1 || feed[0].ID != "v1" {
		t.Fatalf("unexpected feed %+v", feed)
	}
}

func TestVideoMutationsRequireOwner(t *testing.T) {
	store := newMemVideos()
	router, tokenFor := newVideoRouter(store, &uploaderStub{})
	owner, stranger := tokenFor(t, "u1"), tokenFor(t, "u2")

	if rec := do(t, router, http.MethodPost, "/api/videos", "", createVideoRequest{Title: "x", FileName: "x.mp4", Duration: 1}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected anonymous create rejected got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodPost, "/api/videos", owner, createVideoRequest{Title: "x", FileName: "../x.mp4", Duration: 1}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected traversal file name rejected got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodPost, "/api/videos", owner, createVideoRequest{Title: "x", FileName: "x.mp4", Duration: 1}); rec.Code != http.StatusCreated {
		t.Fatalf("expected create got %d", rec.Code)
	}

	title := "renamed"
	if rec := do(t, router, http.MethodPut, "/api/videos/v1", stranger, videos.Update{Title: &title}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected stranger update rejected got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodPost, "/api/videos/v1/confirm", stranger, confirmRequest{FileName: "x.mp4"}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected stranger confirm rejected got %d", rec.Code)
	}

	visible := models.VideoStateVisible
	if rec := do(t, router, http.MethodPut, "/api/videos/v1", owner, videos.Update{State: &visible}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected direct publish rejected got %d", rec.Code)
	}

	rec := do(t, router, http.MethodPut, "/api/videos/v1", owner, videos.Update{Title: &title})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected owner update got %d", rec.Code)
	}
	if v := decode[models.Video](t, rec); v.Title != "renamed" {
		t.Fatalf("unexpected updated video %+v", v)
	}

	if rec := do(t, router, http.MethodDelete, "/api/videos/v1", stranger, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected stranger delete rejected got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodDelete, "/api/videos/v1", owner, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected owner delete 204 got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodDelete, "/api/videos/v1", owner, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected deleted video to 404 got %d", rec.Code)
	}
}

func TestFeedEmptyIsArray(t *testing.T) {
	router, _ := newVideoRouter(newMemVideos(), &uploaderStub{})

	rec := do(t, router, http.MethodGet, "/api/videos", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Fatalf("expected empty json array got %d %q", rec.Code, rec.Body.String())
	}
}
