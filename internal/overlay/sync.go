package overlay

import (
	"context"
	"image"
	"log/slog"

	"match-overlay/internal/platform/metrics"
)

// MediaInfo describes a loaded video.
type MediaInfo struct {
	Width  int
	Height int
	FPS    float64
}

// Media is the playback surface. Seek returns immediately; the callback
// registered with OnSeeked fires on another goroutine once the surface has
// moved and decoded the frame at the new position.
type Media interface {
	Load(ctx context.Context, url string) (MediaInfo, error)
	Seek(ts float64)
	CurrentTime() float64
	Frame() image.Image
	OnSeeked(fn func())
	Close() error
}

// Synchronizer moves the media to the frames the stream reports and paints
// the cached tracks once the media has settled.
type Synchronizer struct {
	media    Media
	clock    FrameClock
	cache    *Cache
	renderer *Renderer
	allowed  func() bool
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewSynchronizer wires the playback surface to the cache and renderer.
// allowed decides, per settle, whether drawing is permitted.
func NewSynchronizer(media Media, clock FrameClock, cache *Cache, renderer *Renderer, allowed func() bool, log *slog.Logger, m *metrics.Metrics) *Synchronizer {
	return &Synchronizer{
		media:    media,
		clock:    clock,
		cache:    cache,
		renderer: renderer,
		allowed:  allowed,
		log:      log,
		metrics:  m,
	}
}

// SeekTo asks the media to move to ts. Nothing is drawn until the media
// reports the seek as settled.
func (s *Synchronizer) SeekTo(ts float64) {
	s.media.Seek(ts)
}

// SeekToFrame is SeekTo for a frame id.
func (s *Synchronizer) SeekToFrame(frameID int) {
	s.SeekTo(s.clock.Timestamp(frameID))
}

// OnSeekSettled renders the frame the media is now showing. It reports
// whether anything was drawn; a suppressed or paused session draws nothing.
func (s *Synchronizer) OnSeekSettled() bool {
	if s.allowed != nil && !s.allowed() {
		return false
	}

	frameID := s.clock.FrameID(s.media.CurrentTime())
	tracks := s.cache.Get(frameID)
	s.renderer.Render(s.media.Frame(), tracks)

	s.log.Debug("overlay rendered",
		slog.Int("frame_id", frameID),
		slog.Int("tracks", len(tracks)))
	if s.metrics != nil {
		s.metrics.IncOverlaysRendered()
	}
	return true
}
