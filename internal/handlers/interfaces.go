package handlers

import (
	"context"

	"github.com/bortube/gateway/internal/models"
	"github.com/bortube/gateway/internal/uploads"
	"github.com/bortube/gateway/internal/users"
	"github.com/bortube/gateway/internal/videos"
)

// UserService captures the user operations exposed over HTTP.
type UserService interface {
	Authenticate(ctx context.Context, email, password string) (models.UserView, error)
	List(ctx context.Context) ([]models.UserView, error)
	Get(ctx context.Context, id string) (models.UserView, error)
	Delete(ctx context.Context, id string) (models.UserView, error)
	Create(ctx context.Context, in users.NewUser) (models.UserView, error)
	Update(ctx context.Context, id string, in users.Update) (models.UserView, error)
}

// SessionManager issues, rotates and verifies bearer credentials.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
	Verify(accessToken string) (string, error)
}

// VideoFeed lists the publicly visible videos.
type VideoFeed interface {
	ListVisible(ctx context.Context) ([]models.Video, error)
}

// VideoWorkflow drives owned video mutations and the upload handshake.
type VideoWorkflow interface {
	Create(ctx context.Context, req uploads.CreateRequest) (videos.Created, error)
	Confirm(ctx context.Context, actingUserID, videoID, fileName string) (models.Video, error)
	Update(ctx context.Context, actingUserID, videoID string, in videos.Update) (models.Video, error)
	Delete(ctx context.Context, actingUserID, videoID string) (models.Video, error)
	View(ctx context.Context, actingUserID, videoID string) (models.Video, error)
}
