package videos

import "errors"

var (
	// ErrBackendUnavailable indicates the video backend is not configured.
	ErrBackendUnavailable = errors.New("video backend unavailable")
)
