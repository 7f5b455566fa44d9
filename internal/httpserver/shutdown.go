package httpserver

import "time"

// Defaults applied when the configuration leaves a timeout unset.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
)

type timeoutOrDefault time.Duration

func (t timeoutOrDefault) or(fallback time.Duration) time.Duration {
	if t <= 0 {
		return fallback
	}
	return time.Duration(t)
}
