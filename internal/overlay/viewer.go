package overlay

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"

	"match-overlay/internal/platform/metrics"
)

// Direction is the side team 1 attacks in the first half.
type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// ParseDirection validates a direction option. The empty string means right.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "", DirectionRight:
		return DirectionRight, nil
	case DirectionLeft:
		return DirectionLeft, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// Upload is a video selected by the user.
type Upload struct {
	Name      string
	File      io.Reader
	Direction Direction
}

// Uploader sends a video to the detection backend and knows where the backend
// serves it from afterwards.
type Uploader interface {
	Upload(ctx context.Context, u Upload) (filename string, err error)
	MediaURL(filename string) string
}

// HalftimeToggler tells the backend the teams switched ends.
type HalftimeToggler interface {
	ToggleHalftime(ctx context.Context) error
}

// Snapshotter is implemented by canvases that can hand out the painted raster.
type Snapshotter interface {
	Snapshot() image.Image
}

// Deps are the collaborators a Viewer drives.
type Deps struct {
	Uploader Uploader
	Toggler  HalftimeToggler
	Dialer   Dialer
	Media    Media
	Canvas   Canvas
	Speaker  Speaker
}

// Options tune a Viewer.
type Options struct {
	FPS  float64
	Lang string
}

// State is the UI projection of the viewer. Labels and enabled flags are
// derived from the match phase and never stored separately.
type State struct {
	Phase           string `json:"phase"`
	HalftimeLabel   string `json:"halftime_label"`
	HalftimeEnabled bool   `json:"halftime_enabled"`
	Paused          bool   `json:"paused"`
	PauseLabel      string `json:"pause_label"`
	Streaming       bool   `json:"streaming"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
	CachedFrames    int    `json:"cached_frames"`
	MediaURL        string `json:"media_url,omitempty"`
}

// Viewer is the session context: it owns the match phase, the pause flag,
// the detection cache and the single stream session, and applies user
// actions to them.
type Viewer struct {
	uploadMu sync.Mutex
	mu       sync.Mutex
	match    *Match
	paused   bool
	toggling bool
	loaded   bool
	rendered bool
	epoch    uint64
	mediaURL string

	clock    FrameClock
	cache    *Cache
	media    Media
	canvas   Canvas
	renderer *Renderer
	sync     *Synchronizer
	stream   *StreamManager
	reporter *Reporter
	uploader Uploader
	toggler  HalftimeToggler
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewViewer wires the overlay engine to its collaborators. m may be nil.
func NewViewer(d Deps, opts Options, log *slog.Logger, m *metrics.Metrics) *Viewer {
	v := &Viewer{
		match:    NewMatch(),
		clock:    NewFrameClock(opts.FPS),
		cache:    NewCache(),
		media:    d.Media,
		canvas:   d.Canvas,
		renderer: NewRenderer(d.Canvas),
		reporter: NewReporter(d.Speaker, opts.Lang, log),
		uploader: d.Uploader,
		toggler:  d.Toggler,
		log:      log,
		metrics:  m,
	}
	v.sync = NewSynchronizer(d.Media, v.clock, v.cache, v.renderer, v.renderAllowedLocked, log, m)
	v.stream = NewStreamManager(d.Dialer, v.cache, v.sync, v.reporter, log, m)
	d.Media.OnSeeked(v.onSeekSettled)
	return v
}

// Upload sends the video to the backend, loads it for playback and starts a
// fresh session: empty cache, first half, stream open. A failed upload leaves
// the current session as it was. Uploads run one at a time; each one bumps
// the session epoch so a halftime toggle outstanding across it is discarded.
func (v *Viewer) Upload(ctx context.Context, u Upload) (filename string, err error) {
	defer v.recoverAction(&err)

	v.reporter.Clear()
	if u.File == nil || u.Name == "" {
		v.reporter.ReportError("Please select a video file to upload.")
		return "", ErrNoFile
	}
	if u.Direction == "" {
		u.Direction = DirectionRight
	}

	v.uploadMu.Lock()
	defer v.uploadMu.Unlock()

	v.reporter.SetStatus("Uploading…")
	err = safeCall(func() error {
		var uerr error
		filename, uerr = v.uploader.Upload(ctx, u)
		return uerr
	})
	if err != nil {
		v.reporter.ReportError(err.Error())
		return "", err
	}
	v.reporter.SetStatus(fmt.Sprintf("Uploaded %s.", filename))
	url := v.uploader.MediaURL(filename)

	// The backend has already switched to the new video, so the old stream
	// would only deliver detections for it.
	v.mu.Lock()
	v.epoch++
	v.stream.Close()
	v.loaded = false
	v.mu.Unlock()

	info, err := v.media.Load(ctx, url)
	if err != nil {
		v.reporter.ReportError("Could not load video: " + err.Error())
		return "", fmt.Errorf("load media %s: %w", url, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.clock.Drifts(info.FPS) {
		v.log.Warn("media frame rate differs from configured rate; overlays will drift",
			slog.Float64("media_fps", info.FPS),
			slog.Float64("configured_fps", v.clock.FPS))
	}

	v.cache.Reset()
	v.renderer.Resize(info.Width, info.Height)
	v.match.Reset()
	v.paused = false
	v.toggling = false
	v.loaded = true
	v.rendered = false
	v.mediaURL = url
	v.stream.Open()
	v.reporter.SetStatus("Streaming frames…")
	v.observePhaseLocked()

	v.log.Info("session started",
		slog.String("filename", filename),
		slog.String("direction", string(u.Direction)),
		slog.Int("width", info.Width),
		slog.Int("height", info.Height))
	return filename, nil
}

// Halftime advances the match phase. The backend is told first; if it fails
// the phase stays where it was.
func (v *Viewer) Halftime(ctx context.Context) (phase Phase, err error) {
	defer v.recoverAction(&err)

	v.reporter.Clear()

	v.mu.Lock()
	from := v.match.Phase()
	if !v.match.ControlEnabled() {
		v.mu.Unlock()
		return from, ErrMatchFinished
	}
	if v.toggling {
		v.mu.Unlock()
		return from, ErrTransitionInFlight
	}
	v.toggling = true
	epoch := v.epoch
	v.mu.Unlock()

	err = safeCall(func() error { return v.toggler.ToggleHalftime(ctx) })

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.epoch == epoch {
		v.toggling = false
	}
	if err != nil {
		v.reporter.ReportError("Failed to toggle halftime: " + err.Error())
		return v.match.Phase(), fmt.Errorf("toggle halftime: %w", err)
	}
	if v.epoch != epoch || v.match.Phase() != from {
		return v.match.Phase(), ErrSuperseded
	}

	next, err := v.match.Advance()
	if err != nil {
		return next, err
	}
	switch next {
	case PhaseHalftime, PhaseFinished:
		v.stream.Close()
	case PhaseSecond:
		if v.loaded && !v.paused {
			v.stream.Open()
		}
	}
	v.reporter.SetStatus(next.StatusText())
	v.observePhaseLocked()

	v.log.Info("match phase changed",
		slog.String("from", from.String()),
		slog.String("to", next.String()))
	return next, nil
}

// TogglePause flips the user pause. Pausing closes the stream; resuming
// reopens it when the phase allows streaming.
func (v *Viewer) TogglePause() State {
	v.reporter.Clear()

	v.mu.Lock()
	defer v.mu.Unlock()

	v.paused = !v.paused
	switch {
	case v.paused:
		v.stream.Close()
	case v.loaded && v.match.Phase().Active():
		v.stream.Open()
		v.reporter.SetStatus("Streaming frames…")
	}
	return v.stateLocked()
}

// State returns the current UI projection.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

// Phase returns the current match phase.
func (v *Viewer) Phase() Phase {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.match.Phase()
}

// CachedFrames returns the number of frames in the detection cache.
func (v *Viewer) CachedFrames() int {
	return v.cache.Len()
}

// Snapshot returns the painted overlay, or false before anything was drawn.
// Renders run under the same lock, so the copy is never a half-painted frame.
func (v *Viewer) Snapshot() (image.Image, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, ok := v.canvas.(Snapshotter)
	if !v.rendered || !ok {
		return nil, false
	}
	return s.Snapshot(), true
}

// ReportUnexpected surfaces a failure caught outside the engine, such as a
// panic in an HTTP handler.
func (v *Viewer) ReportUnexpected(value any) {
	v.reporter.ReportError(fmt.Sprintf("An unexpected error occurred: %v", value))
}

// Close ends the stream session and releases the media.
func (v *Viewer) Close() error {
	v.stream.Close()
	return v.media.Close()
}

// recoverAction reports a panic in a user action and turns it into the
// action's error.
func (v *Viewer) recoverAction(err *error) {
	if p := recover(); p != nil {
		v.ReportUnexpected(p)
		*err = fmt.Errorf("%w: %v", ErrUnexpected, p)
	}
}

// safeCall runs a collaborator call, converting a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrUnexpected, p)
		}
	}()
	return fn()
}

func (v *Viewer) onSeekSettled() {
	defer recoverTo(v.reporter)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.sync.OnSeekSettled() {
		v.rendered = true
	}
}

// renderAllowedLocked is the synchronizer's gate. It runs inside
// onSeekSettled, which holds v.mu.
func (v *Viewer) renderAllowedLocked() bool {
	return v.loaded && !v.paused && v.match.Phase().Active()
}

func (v *Viewer) stateLocked() State {
	phase := v.match.Phase()
	pauseLabel := "Pause"
	if v.paused {
		pauseLabel = "Resume"
	}
	return State{
		Phase:           phase.String(),
		HalftimeLabel:   phase.ControlLabel(),
		HalftimeEnabled: v.match.ControlEnabled(),
		Paused:          v.paused,
		PauseLabel:      pauseLabel,
		Streaming:       v.stream.Active(),
		Status:          v.reporter.Status(),
		Error:           v.reporter.Message(),
		CachedFrames:    v.cache.Len(),
		MediaURL:        v.mediaURL,
	}
}

func (v *Viewer) observePhaseLocked() {
	if v.metrics != nil {
		v.metrics.SetMatchPhase(int(v.match.Phase()))
	}
}
