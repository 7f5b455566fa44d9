package videos

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/models"
)

type cacheEntry struct {
	videos  []models.Video
	expires time.Time
}

// CachingService wraps another Backend with a TTL cache for the visible feed.
// Every mutation made through it drops the cached feed.
type CachingService struct {
	Backend
	ttl time.Duration

	group singleflight.Group

	mu         sync.RWMutex
	entry      *cacheEntry
	generation uint64
}

// NewCachingService returns a Backend that caches ListVisible for ttl.
func NewCachingService(base Backend, ttl time.Duration) *CachingService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingService{Backend: base, ttl: ttl}
}

// ListVisible returns the cached feed when fresh, otherwise it loads the feed
// once for all concurrent callers and stores it.
func (c *CachingService) ListVisible(ctx context.Context) ([]models.Video, error) {
	if c == nil || c.Backend == nil {
		return nil, apperr.Internal(OpListVisible, "video service unavailable", ErrBackendUnavailable)
	}

	now := time.Now()

	c.mu.RLock()
	entry := c.entry
	generation := c.generation
	c.mu.RUnlock()
	if entry != nil && now.Before(entry.expires) {
		return clone(entry.videos), nil
	}

	// The load is shared, so it must not die with the first caller.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(OpListVisible, func() (any, error) {
		videos, err := c.Backend.ListVisible(loadCtx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.generation == generation {
			c.entry = &cacheEntry{videos: videos, expires: now.Add(c.ttl)}
		}
		c.mu.Unlock()
		return videos, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]models.Video)), nil
	}
}

// Invalidate drops the cached feed.
func (c *CachingService) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.generation++
	c.mu.Unlock()
}

// Create delegates and invalidates the feed.
func (c *CachingService) Create(ctx context.Context, in NewVideo) (Created, error) {
	defer c.Invalidate()
	return c.Backend.Create(ctx, in)
}

// Update delegates and invalidates the feed.
func (c *CachingService) Update(ctx context.Context, id string, in Update) (models.Video, error) {
	defer c.Invalidate()
	return c.Backend.Update(ctx, id, in)
}

// Delete delegates and invalidates the feed.
func (c *CachingService) Delete(ctx context.Context, id string) (models.Video, error) {
	defer c.Invalidate()
	return c.Backend.Delete(ctx, id)
}

func clone(videos []models.Video) []models.Video {
	out := make([]models.Video, len(videos))
	copy(out, videos)
	return out
}
