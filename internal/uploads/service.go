package uploads

import (
	"context"
	"strings"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/models"
	"github.com/bortube/gateway/internal/rpc"
)

// Operation names served by the upload service.
const (
	OpGetUploadURL     = "get-upload-url"
	OpCheckUploadState = "check-upload-state"
)

// UploadURLRequest is the get-upload-url payload. Duration is the validity
// window of the target in seconds.
type UploadURLRequest struct {
	BlobName string `json:"blobName"`
	Duration int    `json:"duration"`
}

// UploadURLReply is the get-upload-url result.
type UploadURLReply struct {
	URL string `json:"url"`
}

// UploadStateRequest is the check-upload-state payload.
type UploadStateRequest struct {
	VideoID     models.ObjectID `json:"videoId"`
	VideoFileID models.ObjectID `json:"videoFileId"`
	FileName    string          `json:"fileName"`
}

// UploadStateReply is the check-upload-state result. UploadState is a
// pointer so a reply without the field can be told apart from false.
type UploadStateReply struct {
	UploadState *bool `json:"uploadState"`
}

// BlobName is the object name an upload for fileName of videoID is stored under.
func BlobName(videoID, fileName string) string {
	return videoID + "_" + fileName
}

// Service is the typed facade over the upload service operations.
type Service struct {
	rpc rpc.Caller
}

// NewService builds a Service on top of caller.
func NewService(caller rpc.Caller) *Service {
	return &Service{rpc: caller}
}

// GetUploadURL issues a write target for fileName of videoID, valid for
// duration seconds.
func (s *Service) GetUploadURL(ctx context.Context, videoID, fileName string, duration int) (string, error) {
	if videoID == "" || strings.TrimSpace(fileName) == "" {
		return "", apperr.InvalidInput(OpGetUploadURL, "video id and file name are required")
	}
	if duration <= 0 {
		return "", apperr.InvalidInput(OpGetUploadURL, "duration must be positive")
	}

	var reply UploadURLReply
	req := UploadURLRequest{BlobName: BlobName(videoID, fileName), Duration: duration}
	if err := s.rpc.Call(ctx, OpGetUploadURL, req, &reply); err != nil {
		return "", err
	}
	if reply.URL == "" {
		return "", apperr.Internal(OpGetUploadURL, "upload service returned an empty url", nil)
	}
	return reply.URL, nil
}

// CheckUploadState reports whether the object for the video file exists and
// is complete.
func (s *Service) CheckUploadState(ctx context.Context, videoID, fileID models.ObjectID, fileName string) (bool, error) {
	if videoID == "" || fileID == "" || strings.TrimSpace(fileName) == "" {
		return false, apperr.InvalidInput(OpCheckUploadState, "video id, file id and file name are required")
	}

	var reply UploadStateReply
	req := UploadStateRequest{VideoID: videoID, VideoFileID: fileID, FileName: fileName}
	if err := s.rpc.Call(ctx, OpCheckUploadState, req, &reply); err != nil {
		return false, err
	}
	if reply.UploadState == nil {
		return false, apperr.Internal(OpCheckUploadState, "upload service reply has no uploadState", nil)
	}
	return *reply.UploadState, nil
}
