// Package media decodes the uploaded match video with OpenCV and implements
// the overlay engine's playback surface.
package media

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"match-overlay/internal/overlay"

	"gocv.io/x/gocv"
)

// Video is a seekable video surface. Seeks are served by one worker
// goroutine; a seek requested while another is decoding replaces any seek
// still waiting, so the surface always converges on the latest position.
type Video struct {
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	frame    image.Image
	current  float64
	onSeeked func()
	pending  chan float64
	stop     chan struct{}
	done     chan struct{}
	log      *slog.Logger
}

var _ overlay.Media = (*Video)(nil)

// NewVideo returns an empty surface.
func NewVideo(log *slog.Logger) *Video {
	return &Video{log: log}
}

// Load opens url and reads its intrinsic size and frame rate. Any previously
// loaded video is closed first.
func (v *Video) Load(ctx context.Context, url string) (overlay.MediaInfo, error) {
	if err := ctx.Err(); err != nil {
		return overlay.MediaInfo{}, err
	}
	if err := v.Close(); err != nil {
		v.log.Warn("closing previous video failed", slog.String("error", err.Error()))
	}

	capture, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return overlay.MediaInfo{}, fmt.Errorf("open %s: %w", url, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return overlay.MediaInfo{}, fmt.Errorf("open %s: capture not opened", url)
	}

	info := overlay.MediaInfo{
		Width:  int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(capture.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    capture.Get(gocv.VideoCaptureFPS),
	}
	if info.Width <= 0 || info.Height <= 0 {
		capture.Close()
		return overlay.MediaInfo{}, fmt.Errorf("open %s: no video dimensions", url)
	}

	v.mu.Lock()
	v.capture = capture
	v.frame = nil
	v.current = 0
	v.pending = make(chan float64, 1)
	v.stop = make(chan struct{})
	v.done = make(chan struct{})
	go v.seekLoop(capture, v.pending, v.stop, v.done)
	v.mu.Unlock()

	v.log.Info("video loaded",
		slog.String("url", url),
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
		slog.Float64("fps", info.FPS))
	return info, nil
}

// Seek requests a move to ts seconds. It never blocks.
func (v *Video) Seek(ts float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pending == nil {
		return
	}
	select {
	case <-v.pending:
	default:
	}
	v.pending <- ts
}

// CurrentTime returns the position of the last settled seek.
func (v *Video) CurrentTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Frame returns the frame decoded at the current position, or nil.
func (v *Video) Frame() image.Image {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame
}

// OnSeeked registers the settle callback. It runs on the seek worker.
func (v *Video) OnSeeked(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onSeeked = fn
}

// Close stops the seek worker and releases the capture.
func (v *Video) Close() error {
	v.mu.Lock()
	stop, done := v.stop, v.done
	v.stop, v.done, v.pending = nil, nil, nil
	v.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.capture == nil {
		return nil
	}
	err := v.capture.Close()
	v.capture = nil
	return err
}

func (v *Video) seekLoop(capture *gocv.VideoCapture, pending <-chan float64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-stop:
			return
		case ts := <-pending:
			img, err := decodeAt(capture, &mat, ts)
			if err != nil {
				v.log.Warn("seek failed", slog.Float64("ts", ts), slog.String("error", err.Error()))
				continue
			}

			v.mu.Lock()
			v.current = ts
			v.frame = img
			cb := v.onSeeked
			v.mu.Unlock()

			if cb != nil {
				cb()
			}
		}
	}
}

func decodeAt(capture *gocv.VideoCapture, mat *gocv.Mat, ts float64) (image.Image, error) {
	capture.Set(gocv.VideoCapturePosMsec, ts*1000)
	if ok := capture.Read(mat); !ok || mat.Empty() {
		return nil, fmt.Errorf("no frame at %.3fs", ts)
	}
	return mat.ToImage()
}
