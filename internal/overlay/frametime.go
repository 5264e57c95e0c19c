package overlay

import "math"

// DefaultFPS is the frame rate assumed when none is configured.
const DefaultFPS = 30.0

// FrameClock converts between 1-based frame ids and playback timestamps in
// seconds at a fixed frame rate. The rate is configuration, not read from the
// media, so a video recorded at a different rate drifts.
type FrameClock struct {
	FPS float64
}

// NewFrameClock returns a clock for fps, or DefaultFPS if fps <= 0.
func NewFrameClock(fps float64) FrameClock {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return FrameClock{FPS: fps}
}

// Timestamp returns the playback position of frameID. Frame 1 starts at 0.
func (c FrameClock) Timestamp(frameID int) float64 {
	if frameID < 1 {
		return 0
	}
	return float64(frameID-1) / c.fps()
}

// FrameID returns the frame shown at ts. It is the inverse of Timestamp.
func (c FrameClock) FrameID(ts float64) int {
	if ts <= 0 || math.IsNaN(ts) {
		return 1
	}
	return int(math.Round(ts*c.fps())) + 1
}

// Drifts reports whether a media frame rate differs from the clock's enough to
// make overlays land on the wrong frame over a long video.
func (c FrameClock) Drifts(mediaFPS float64) bool {
	if mediaFPS <= 0 {
		return false
	}
	return math.Abs(mediaFPS-c.fps()) > 0.01
}

func (c FrameClock) fps() float64 {
	if c.FPS <= 0 {
		return DefaultFPS
	}
	return c.FPS
}
