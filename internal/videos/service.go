package videos

import (
	"context"
	"strings"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/models"
	"github.com/bortube/gateway/internal/rpc"
)

// Operation names served by the video service.
const (
	OpList        = "get-all-videos"
	OpListVisible = "get-all-visible-videos"
	OpGet         = "get-video-by-id"
	OpDelete      = "delete-video"
	OpCreate      = "create-video"
	OpUpdate      = "update-video"
)

// Backend is the set of video operations. Service implements it over RPC and
// CachingService decorates another Backend.
type Backend interface {
	List(ctx context.Context) ([]models.Video, error)
	ListVisible(ctx context.Context) ([]models.Video, error)
	Get(ctx context.Context, id string) (models.Video, error)
	Delete(ctx context.Context, id string) (models.Video, error)
	Create(ctx context.Context, in NewVideo) (Created, error)
	Update(ctx context.Context, id string, in Update) (models.Video, error)
}

// NewVideo is the create-video payload. Duration is the validity window of
// the upload target in seconds.
type NewVideo struct {
	UserID      string `json:"userId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FileName    string `json:"fileName"`
	Duration    int    `json:"duration"`
}

// Created is the create-video result.
type Created struct {
	Video           models.Video `json:"video"`
	UploadTargetURL string       `json:"uploadTargetUrl"`
}

type createdReply struct {
	Video           *models.Video `json:"video"`
	UploadTargetURL string        `json:"uploadTargetUrl"`
	SASURL          string        `json:"sasUrl"`
}

// Update is a partial update. Nil fields are left out of the request.
type Update struct {
	Title       *string            `json:"title,omitempty"`
	Description *string            `json:"description,omitempty"`
	State       *models.VideoState `json:"videoState,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Title == nil && u.Description == nil && u.State == nil
}

type updateRequest struct {
	ID string `json:"id"`
	Update
}

type idRequest struct {
	ID string `json:"id"`
}

// Service is the typed facade over the video service operations.
type Service struct {
	rpc rpc.Caller
}

var _ Backend = (*Service)(nil)

// NewService builds a Service on top of caller.
func NewService(caller rpc.Caller) *Service {
	return &Service{rpc: caller}
}

// List returns every video regardless of state.
func (s *Service) List(ctx context.Context) ([]models.Video, error) {
	return s.many(ctx, OpList)
}

// ListVisible returns the published videos.
func (s *Service) ListVisible(ctx context.Context) ([]models.Video, error) {
	return s.many(ctx, OpListVisible)
}

// Get fetches one video.
func (s *Service) Get(ctx context.Context, id string) (models.Video, error) {
	if strings.TrimSpace(id) == "" {
		return models.Video{}, apperr.InvalidInput(OpGet, "id is required")
	}
	return s.one(ctx, OpGet, idRequest{ID: id})
}

// Delete removes a video and returns the deleted record.
func (s *Service) Delete(ctx context.Context, id string) (models.Video, error) {
	if strings.TrimSpace(id) == "" {
		return models.Video{}, apperr.InvalidInput(OpDelete, "id is required")
	}
	return s.one(ctx, OpDelete, idRequest{ID: id})
}

// Create registers a new video. The upload target may be empty when the
// video service did not issue one.
func (s *Service) Create(ctx context.Context, in NewVideo) (Created, error) {
	var reply createdReply
	if err := s.rpc.Call(ctx, OpCreate, in, &reply); err != nil {
		return Created{}, err
	}
	if reply.Video == nil {
		return Created{}, apperr.Internal(OpCreate, "video service returned no video", nil)
	}
	if err := validate(OpCreate, *reply.Video); err != nil {
		return Created{}, err
	}

	url := reply.UploadTargetURL
	if url == "" {
		url = reply.SASURL
	}
	return Created{Video: *reply.Video, UploadTargetURL: url}, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, in Update) (models.Video, error) {
	if strings.TrimSpace(id) == "" {
		return models.Video{}, apperr.InvalidInput(OpUpdate, "id is required")
	}
	if in.Empty() {
		return models.Video{}, apperr.InvalidInput(OpUpdate, "no fields to update")
	}
	if in.State != nil && !in.State.Valid() {
		return models.Video{}, apperr.InvalidInput(OpUpdate, "unknown video state "+string(*in.State))
	}
	return s.one(ctx, OpUpdate, updateRequest{ID: id, Update: in})
}

func (s *Service) one(ctx context.Context, op string, payload any) (models.Video, error) {
	var video models.Video
	if err := s.rpc.Call(ctx, op, payload, &video); err != nil {
		return models.Video{}, err
	}
	if err := validate(op, video); err != nil {
		return models.Video{}, err
	}
	return video, nil
}

func (s *Service) many(ctx context.Context, op string) ([]models.Video, error) {
	var videos []models.Video
	if err := s.rpc.Call(ctx, op, struct{}{}, &videos); err != nil {
		return nil, err
	}
	for _, v := range videos {
		if err := validate(op, v); err != nil {
			return nil, err
		}
	}
	if videos == nil {
		videos = []models.Video{}
	}
	return videos, nil
}

func validate(op string, v models.Video) error {
	if v.ID == "" {
		return apperr.Internal(op, "video service returned a video without id", nil)
	}
	if !v.State.Valid() {
		return apperr.Internal(op, "video service returned unknown state "+string(v.State), nil)
	}
	return nil
}
