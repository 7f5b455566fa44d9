package uploads

import (
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/auth"
	"github.com/bortube/gateway/internal/logging"
	"github.com/bortube/gateway/internal/models"
	"github.com/bortube/gateway/internal/videos"
)

const (
	opCreate  = "create-video-upload"
	opConfirm = "confirm-video-upload"
	opUpdate  = "update-video"
	opDelete  = "delete-video"
	opView    = "get-video"

	// DefaultMaxDuration caps the upload window, in seconds.
	DefaultMaxDuration = 3600
)

// VideoStore is the subset of the video service the coordinator drives.
type VideoStore interface {
	Get(ctx context.Context, id string) (models.Video, error)
	Create(ctx context.Context, in videos.NewVideo) (videos.Created, error)
	Update(ctx context.Context, id string, in videos.Update) (models.Video, error)
	Delete(ctx context.Context, id string) (models.Video, error)
}

// Uploader is the upload service as seen by the coordinator.
type Uploader interface {
	GetUploadURL(ctx context.Context, videoID, fileName string, duration int) (string, error)
	CheckUploadState(ctx context.Context, videoID, fileID models.ObjectID, fileName string) (bool, error)
}

// EventPublisher announces lifecycle transitions.
type EventPublisher interface {
	VideoPublished(ctx context.Context, video models.Video) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxDuration caps the upload window requested at creation.
func WithMaxDuration(seconds int) Option {
	return func(c *Coordinator) {
		if seconds > 0 {
			c.maxDuration = seconds
		}
	}
}

// WithEvents publishes a video-published event after each confirmation.
func WithEvents(events EventPublisher) Option {
	return func(c *Coordinator) {
		c.events = events
	}
}

// Coordinator drives a video through create, upload and confirm, and applies
// the ownership predicate to every mutation.
type Coordinator struct {
	videos      VideoStore
	uploads     Uploader
	events      EventPublisher
	maxDuration int

	confirms singleflight.Group
}

// NewCoordinator wires the video and upload services.
func NewCoordinator(videos VideoStore, uploads Uploader, opts ...Option) *Coordinator {
	c := &Coordinator{
		videos:      videos,
		uploads:     uploads,
		maxDuration: DefaultMaxDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateRequest describes a new video and its pending upload.
type CreateRequest struct {
	UserID      string
	Title       string
	Description string
	FileName    string
	Duration    int
}

// Create registers the video and returns it with the write target the
// client uploads to.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (videos.Created, error) {
	in, err := c.validateCreate(req)
	if err != nil {
		return videos.Created{}, err
	}

	created, err := c.videos.Create(ctx, in)
	if err != nil {
		return videos.Created{}, err
	}

	video := created.Video
	if video.Visible() {
		return videos.Created{}, apperr.Internal(opCreate, "video service created a visible video", nil)
	}
	if !video.HasFile() {
		return videos.Created{}, apperr.Internal(opCreate, "video service assigned no file reference", nil)
	}

	if created.UploadTargetURL == "" {
		url, err := c.uploads.GetUploadURL(ctx, video.ID.String(), in.FileName, in.Duration)
		if err != nil {
			logging.FromContext(ctx).Warn("video created without upload target", "video_id", video.ID.String(), "error", err)
			return videos.Created{}, &apperr.Error{
				Kind:    apperr.KindOf(err),
				Op:      opCreate,
				Code:    apperr.Code(err),
				Message: fmt.Sprintf("video %s was created but no upload target was issued: %s", video.ID, apperr.Message(err)),
				Err:     err,
			}
		}
		created.UploadTargetURL = url
	}

	logging.FromContext(ctx).Info("video created", "video_id", video.ID.String(), "owner_id", video.UserID)
	return created, nil
}

func (c *Coordinator) validateCreate(req CreateRequest) (videos.NewVideo, error) {
	in := videos.NewVideo{
		UserID:      strings.TrimSpace(req.UserID),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		FileName:    strings.TrimSpace(req.FileName),
		Duration:    req.Duration,
	}

	switch {
	case in.UserID == "":
		return in, apperr.InvalidInput(opCreate, "userId is required")
	case in.Title == "":
		return in, apperr.InvalidInput(opCreate, "title is required")
	case in.FileName == "":
		return in, apperr.InvalidInput(opCreate, "fileName is required")
	case !validFileName(in.FileName):
		return in, apperr.InvalidInput(opCreate, "fileName must be a plain file name")
	case in.Duration <= 0:
		return in, apperr.InvalidInput(opCreate, "duration must be positive")
	case in.Duration > c.maxDuration:
		return in, apperr.InvalidInput(opCreate, "duration exceeds the maximum upload window")
	}
	return in, nil
}

func validFileName(name string) bool {
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return name != "." && name != ".." && path.Base(name) == name
}

// Confirm publishes the video once its file is present in the blob store.
// Confirming a visible video returns it unchanged. Concurrent confirmations
// of one video by one user share a single execution.
func (c *Coordinator) Confirm(ctx context.Context, actingUserID, videoID, fileName string) (models.Video, error) {
	videoID = strings.TrimSpace(videoID)
	fileName = strings.TrimSpace(fileName)
	if videoID == "" {
		return models.Video{}, apperr.InvalidInput(opConfirm, "videoId is required")
	}
	if fileName == "" {
		return models.Video{}, apperr.InvalidInput(opConfirm, "fileName is required")
	}

	// The shared flight outlives any one caller; each waiter still honours
	// its own context.
	key := videoID + "\x00" + actingUserID + "\x00" + fileName
	flightCtx := context.WithoutCancel(ctx)
	ch := c.confirms.DoChan(key, func() (any, error) {
		return c.confirm(flightCtx, actingUserID, videoID, fileName)
	})

	select {
	case <-ctx.Done():
		return models.Video{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			logging.FromContext(ctx).Debug("joined in-flight confirmation", "video_id", videoID)
		}
		if res.Err != nil {
			return models.Video{}, res.Err
		}
		return res.Val.(models.Video), nil
	}
}

func (c *Coordinator) confirm(ctx context.Context, actingUserID, videoID, fileName string) (models.Video, error) {
	video, err := c.videos.Get(ctx, videoID)
	if err != nil {
		return models.Video{}, err
	}
	if err := auth.Authorize(actingUserID, video.UserID); err != nil {
		return models.Video{}, err
	}

	switch {
	case video.Visible():
		return video, nil
	case video.State == models.VideoStateFailed:
		return models.Video{}, apperr.InvalidInput(opConfirm, "video upload has failed")
	case !video.HasFile():
		return models.Video{}, apperr.InvalidInput(opConfirm, "no file id associated")
	}

	uploaded, err := c.uploads.CheckUploadState(ctx, video.ID, *video.FileID, fileName)
	if err != nil {
		return models.Video{}, err
	}
	if !uploaded {
		return models.Video{}, apperr.Internal(opConfirm, "file has not been uploaded", nil)
	}

	visible := models.VideoStateVisible
	updated, err := c.videos.Update(ctx, video.ID.String(), videos.Update{State: &visible})
	if err != nil {
		return models.Video{}, err
	}
	if !updated.Visible() {
		return models.Video{}, apperr.Internal(opConfirm, "video service did not publish the video", nil)
	}

	logger := logging.FromContext(ctx)
	logger.Info("video published", "video_id", updated.ID.String())
	if c.events != nil {
		if err := c.events.VideoPublished(ctx, updated); err != nil {
			logger.Warn("publish video event", "video_id", updated.ID.String(), "error", err)
		}
	}
	return updated, nil
}

// Update applies a partial update on behalf of the owner. The visible state
// can only be reached through Confirm.
func (c *Coordinator) Update(ctx context.Context, actingUserID, videoID string, in videos.Update) (models.Video, error) {
	if in.Empty() {
		return models.Video{}, apperr.InvalidInput(opUpdate, "no fields to update")
	}
	if in.State != nil && *in.State == models.VideoStateVisible {
		return models.Video{}, apperr.InvalidInput(opUpdate, "videos become visible only through upload confirmation")
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return models.Video{}, apperr.InvalidInput(opUpdate, "title must not be empty")
	}

	if _, err := c.owned(ctx, actingUserID, videoID); err != nil {
		return models.Video{}, err
	}
	return c.videos.Update(ctx, videoID, in)
}

// Delete removes the video on behalf of the owner.
func (c *Coordinator) Delete(ctx context.Context, actingUserID, videoID string) (models.Video, error) {
	if _, err := c.owned(ctx, actingUserID, videoID); err != nil {
		return models.Video{}, err
	}
	return c.videos.Delete(ctx, videoID)
}

// View returns a video to actingUserID. Videos that are not visible exist
// only for their owner.
func (c *Coordinator) View(ctx context.Context, actingUserID, videoID string) (models.Video, error) {
	video, err := c.videos.Get(ctx, videoID)
	if err != nil {
		return models.Video{}, err
	}
	if !video.Visible() && (actingUserID == "" || actingUserID != video.UserID) {
		return models.Video{}, apperr.NotFound(opView, "video not found")
	}
	return video, nil
}

func (c *Coordinator) owned(ctx context.Context, actingUserID, videoID string) (models.Video, error) {
	if actingUserID == "" {
		return models.Video{}, auth.Authorize(actingUserID, "")
	}
	video, err := c.videos.Get(ctx, videoID)
	if err != nil {
		return models.Video{}, err
	}
	if err := auth.Authorize(actingUserID, video.UserID); err != nil {
		return models.Video{}, err
	}
	return video, nil
}
