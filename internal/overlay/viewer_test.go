package overlay

import (
	"context"
	"errors"
	"image/color"
	"strings"
	"testing"
	"time"

	"match-overlay/internal/platform/logger"
)

const frame31 = `{"frame_id":31,"tracks":[{"id":1,"cls":"2","team":1,"bbox":[0,0,10,10],"color":[0,0,255]}]}`

func (m *fakeMedia) loadedURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loaded...)
}

func TestViewer_end_to_end(t *testing.T) {
	h := newHarness(t)
	src := h.start(t, "match.mp4")

	if got := h.media.loadedURLs(); len(got) != 1 || got[0] != "http://backend/uploads/match.mp4" {
		t.Fatalf("media loads: %v", got)
	}
	if w, hh := h.canvas.Size(); w != 640 || hh != 360 {
		t.Errorf("canvas should match the video size, got %dx%d", w, hh)
	}
	st := h.v.State()
	if st.Phase != "first" || !st.Streaming || st.Status != "Streaming frames…" || st.HalftimeLabel != "Halftime" {
		t.Errorf("state after upload: %+v", st)
	}
	if _, ok := h.v.Snapshot(); ok {
		t.Error("nothing has been painted yet")
	}

	src.send(frame31)
	waitFor(t, "seek to 1.0s", func() bool {
		s := h.media.seekLog()
		return len(s) > 0 && s[len(s)-1] == 1.0
	})
	h.media.settle()

	rects := h.canvas.ops("rect")
	if len(rects) != 1 || rects[0].x != 0 || rects[0].y != 0 || rects[0].w != 10 || rects[0].h != 10 {
		t.Fatalf("rects: %+v", rects)
	}
	texts := h.canvas.ops("text")
	if len(texts) != 1 || texts[0].text != "ID:1 T1" || texts[0].x != 0 || texts[0].y != 25 {
		t.Errorf("labels: %+v", texts)
	}
	if len(h.canvas.ops("frame")) != 1 {
		t.Error("video frame should be blitted under the overlay")
	}
	if _, ok := h.v.Snapshot(); !ok {
		t.Error("snapshot should be available after a render")
	}
	if h.v.CachedFrames() != 1 {
		t.Errorf("cached frames: %d", h.v.CachedFrames())
	}
}

func TestViewer_settle_without_detections_draws_nothing(t *testing.T) {
	h := newHarness(t)
	h.start(t, "match.mp4")

	h.media.settleAt(2.0)

	if n := len(h.canvas.ops("rect")); n != 0 {
		t.Errorf("no detections cached, got %d boxes", n)
	}
	if len(h.canvas.ops("frame")) != 1 {
		t.Error("the video frame is still painted")
	}
}

func TestViewer_Upload_without_file(t *testing.T) {
	h := newHarness(t)

	_, err := h.v.Upload(context.Background(), Upload{})
	if !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected ErrNoFile, got %v", err)
	}
	if h.v.State().Error != "Please select a video file to upload." {
		t.Errorf("error area: %q", h.v.State().Error)
	}
	if !h.speaker.spoke("Please select a video file to upload.") {
		t.Error("error should be spoken")
	}
	if h.uploader.callCount() != 0 {
		t.Error("backend should not be called")
	}
}

func TestViewer_Upload_default_direction(t *testing.T) {
	h := newHarness(t)
	u := videoUpload("match.mp4")
	u.Direction = ""
	if _, err := h.v.Upload(context.Background(), u); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	h.dialer.next(t)

	h.uploader.mu.Lock()
	defer h.uploader.mu.Unlock()
	if h.uploader.last.Direction != DirectionRight {
		t.Errorf("direction: %q", h.uploader.last.Direction)
	}
}

func TestViewer_failed_upload_keeps_session(t *testing.T) {
	h := newHarness(t)
	h.start(t, "first.mp4")
	h.v.cache.Put(5, []Track{{ID: 1, Class: ClassPlayer, BBox: []float64{0, 0, 1, 1}}})

	h.uploader.mu.Lock()
	h.uploader.err = errors.New("Upload failed (413)")
	h.uploader.mu.Unlock()

	if _, err := h.v.Upload(context.Background(), videoUpload("second.mp4")); err == nil {
		t.Fatal("expected an error")
	}

	st := h.v.State()
	if st.Error != "Upload failed (413)" {
		t.Errorf("error area: %q", st.Error)
	}
	if !st.Streaming || st.CachedFrames != 1 || st.MediaURL != "http://backend/uploads/first.mp4" {
		t.Errorf("previous session should be untouched: %+v", st)
	}
	if n := len(h.media.loadedURLs()); n != 1 {
		t.Errorf("media should not be reloaded, got %d loads", n)
	}
}

func TestViewer_media_load_failure(t *testing.T) {
	h := newHarness(t)
	h.media.loadErr = errBoom

	if _, err := h.v.Upload(context.Background(), videoUpload("match.mp4")); err == nil {
		t.Fatal("expected an error")
	}
	st := h.v.State()
	if st.Error != "Could not load video: boom" {
		t.Errorf("error area: %q", st.Error)
	}
	if st.Streaming {
		t.Error("stream should not open without a video")
	}
}

func TestViewer_Upload_recovers_panic(t *testing.T) {
	h := newHarness(t)
	h.uploader.panicWith = "kaboom"

	_, err := h.v.Upload(context.Background(), videoUpload("match.mp4"))
	if !errors.Is(err, ErrUnexpected) {
		t.Fatalf("expected ErrUnexpected, got %v", err)
	}
	if st := h.v.State(); !strings.Contains(st.Error, "kaboom") || st.Streaming {
		t.Errorf("state: %+v", st)
	}
}

func TestViewer_new_upload_resets_session(t *testing.T) {
	h := newHarness(t)
	first := h.start(t, "first.mp4")
	h.v.cache.Put(5, nil)
	if _, err := h.v.Halftime(context.Background()); err != nil {
		t.Fatalf("Halftime: %v", err)
	}

	h.start(t, "second.mp4")

	st := h.v.State()
	if st.Phase != "first" || st.CachedFrames != 0 || !st.Streaming || st.Paused {
		t.Errorf("state after re-upload: %+v", st)
	}
	waitFor(t, "old stream closed", first.isClosed)
}

func TestViewer_Halftime_full_sequence(t *testing.T) {
	h := newHarness(t)
	first := h.start(t, "match.mp4")
	ctx := context.Background()

	phase, err := h.v.Halftime(ctx)
	if err != nil || phase != PhaseHalftime {
		t.Fatalf("first toggle: %v %v", phase, err)
	}
	st := h.v.State()
	if st.Streaming || st.HalftimeLabel != "Start 2nd Half" || st.Status != PhaseHalftime.StatusText() {
		t.Errorf("halftime state: %+v", st)
	}
	waitFor(t, "first-half stream closed", first.isClosed)

	phase, err = h.v.Halftime(ctx)
	if err != nil || phase != PhaseSecond {
		t.Fatalf("second toggle: %v %v", phase, err)
	}
	second := h.dialer.next(t)
	if st := h.v.State(); !st.Streaming || st.HalftimeLabel != "Full Time" {
		t.Errorf("second-half state: %+v", st)
	}

	phase, err = h.v.Halftime(ctx)
	if err != nil || phase != PhaseFinished {
		t.Fatalf("third toggle: %v %v", phase, err)
	}
	waitFor(t, "second-half stream closed", second.isClosed)
	st = h.v.State()
	if st.HalftimeEnabled || st.Streaming || st.Status != "Thank you for using Murdock VAR system" {
		t.Errorf("finished state: %+v", st)
	}

	phase, err = h.v.Halftime(ctx)
	if !errors.Is(err, ErrMatchFinished) || phase != PhaseFinished {
		t.Errorf("fourth toggle: %v %v", phase, err)
	}
	if n := h.toggler.callCount(); n != 3 {
		t.Errorf("backend toggles: got %d, want 3", n)
	}
}

func TestViewer_render_suppressed_outside_play(t *testing.T) {
	h := newHarness(t)
	h.start(t, "match.mp4")
	h.v.cache.Put(31, []Track{{ID: 1, Class: ClassPlayer, BBox: []float64{0, 0, 10, 10}}})
	ctx := context.Background()

	h.v.Halftime(ctx)
	h.media.settleAt(1.0)
	if n := len(h.canvas.drawn()); n != 0 {
		t.Errorf("halftime: expected no drawing, got %d calls", n)
	}

	h.v.Halftime(ctx)
	h.dialer.next(t)
	h.media.settleAt(1.0)
	if n := len(h.canvas.ops("rect")); n != 1 {
		t.Errorf("second half: expected one box, got %d", n)
	}

	h.v.Halftime(ctx)
	before := len(h.canvas.drawn())
	h.media.settleAt(1.0)
	if n := len(h.canvas.drawn()); n != before {
		t.Errorf("finished: drawing continued (%d -> %d calls)", before, n)
	}
}

func TestViewer_Halftime_backend_failure(t *testing.T) {
	h := newHarness(t)
	h.start(t, "match.mp4")
	h.toggler.err = errBoom

	phase, err := h.v.Halftime(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if phase != PhaseFirst || h.v.Phase() != PhaseFirst {
		t.Errorf("phase should not move, got %v", h.v.Phase())
	}
	st := h.v.State()
	if st.Error != "Failed to toggle halftime: boom" || !st.Streaming {
		t.Errorf("state: %+v", st)
	}

	h.toggler.mu.Lock()
	h.toggler.err = nil
	h.toggler.mu.Unlock()
	if phase, err := h.v.Halftime(context.Background()); err != nil || phase != PhaseHalftime {
		t.Errorf("retry: %v %v", phase, err)
	}
}

func TestViewer_Halftime_in_flight(t *testing.T) {
	h := newHarness(t)
	h.start(t, "match.mp4")
	h.toggler.block = make(chan struct{})
	h.toggler.entered = make(chan struct{}, 1)

	type result struct {
		phase Phase
		err   error
	}
	done := make(chan result, 1)
	go func() {
		p, err := h.v.Halftime(context.Background())
		done <- result{p, err}
	}()
	<-h.toggler.entered

	if _, err := h.v.Halftime(context.Background()); !errors.Is(err, ErrTransitionInFlight) {
		t.Errorf("expected ErrTransitionInFlight, got %v", err)
	}
	if n := h.toggler.callCount(); n != 1 {
		t.Errorf("backend toggles: got %d, want 1", n)
	}

	close(h.toggler.block)
	r := <-done
	if r.err != nil || r.phase != PhaseHalftime {
		t.Errorf("first toggle: %v %v", r.phase, r.err)
	}
}

func TestViewer_Halftime_superseded_by_upload(t *testing.T) {
	h := newHarness(t)
	h.start(t, "first.mp4")
	h.toggler.block = make(chan struct{})
	h.toggler.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := h.v.Halftime(context.Background())
		done <- err
	}()
	<-h.toggler.entered

	h.start(t, "second.mp4")
	close(h.toggler.block)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded, got %v", err)
	}
	if st := h.v.State(); st.Phase != "first" || !st.Streaming {
		t.Errorf("new session should be untouched: %+v", st)
	}
}

func TestViewer_TogglePause(t *testing.T) {
	h := newHarness(t)
	src := h.start(t, "match.mp4")
	h.v.cache.Put(31, []Track{{ID: 1, Class: ClassPlayer, BBox: []float64{0, 0, 10, 10}}})

	st := h.v.TogglePause()
	if !st.Paused || st.PauseLabel != "Resume" || st.Streaming {
		t.Errorf("paused state: %+v", st)
	}
	waitFor(t, "stream closed", src.isClosed)

	h.media.settleAt(1.0)
	if n := len(h.canvas.drawn()); n != 0 {
		t.Errorf("paused: expected no drawing, got %d calls", n)
	}

	st = h.v.TogglePause()
	if st.Paused || st.PauseLabel != "Pause" || !st.Streaming {
		t.Errorf("resumed state: %+v", st)
	}
	h.dialer.next(t)

	h.media.settleAt(1.0)
	if n := len(h.canvas.ops("rect")); n != 1 {
		t.Errorf("resumed: expected one box, got %d", n)
	}
}

func TestViewer_pause_survives_halftime(t *testing.T) {
	h := newHarness(t)
	h.start(t, "match.mp4")
	ctx := context.Background()

	h.v.TogglePause()
	h.v.Halftime(ctx)
	if st := h.v.TogglePause(); st.Streaming {
		t.Error("resuming during halftime should not open the stream")
	}
	h.v.TogglePause()

	if phase, err := h.v.Halftime(ctx); err != nil || phase != PhaseSecond {
		t.Fatalf("Halftime: %v %v", phase, err)
	}
	if h.v.State().Streaming {
		t.Error("second half should not stream while paused")
	}
	if n := len(h.dialer.dialed); n != 0 {
		t.Errorf("unexpected dials: %d", n)
	}

	h.v.TogglePause()
	h.dialer.next(t)
}

func TestViewer_TogglePause_before_upload(t *testing.T) {
	h := newHarness(t)
	h.v.TogglePause()
	if st := h.v.TogglePause(); st.Streaming {
		t.Error("resume without a video should not open the stream")
	}
}

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{"": DirectionRight, "right": DirectionRight, " Left ": DirectionLeft}
	for in, want := range cases {
		got, err := ParseDirection(in)
		if err != nil || got != want {
			t.Errorf("ParseDirection(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDirection("up"); err == nil {
		t.Error("expected an error for an unknown direction")
	}
}

func TestViewer_concurrent_uploads_run_in_turn(t *testing.T) {
	h := newHarness(t)

	errs := make(chan error, 2)
	for _, name := range []string{"a.mp4", "b.mp4"} {
		go func(name string) {
			_, err := h.v.Upload(context.Background(), videoUpload(name))
			errs <- err
		}(name)
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Upload: %v", err)
		}
	}

	loads := h.media.loadedURLs()
	if len(loads) != 2 {
		t.Fatalf("media loads: %v", loads)
	}
	st := h.v.State()
	if st.MediaURL != loads[1] || !st.Streaming || st.Phase != "first" {
		t.Errorf("session should belong to the last loaded video %q: %+v", loads[1], st)
	}
	if h.uploader.callCount() != 2 {
		t.Errorf("uploads: %d", h.uploader.callCount())
	}
}

// holdingCanvas blocks the first box of a render until release is closed.
type holdingCanvas struct {
	recordingCanvas
	hold    bool
	entered chan struct{}
	release chan struct{}
}

func (c *holdingCanvas) StrokeRect(x, y, w, h, lineWidth float64, col color.Color) {
	c.mu.Lock()
	hold := c.hold
	c.hold = false
	c.mu.Unlock()
	if hold {
		c.entered <- struct{}{}
		<-c.release
	}
	c.recordingCanvas.StrokeRect(x, y, w, h, lineWidth, col)
}

func TestViewer_Snapshot_waits_for_render(t *testing.T) {
	h := newHarness(t)
	cv := &holdingCanvas{entered: make(chan struct{}, 1), release: make(chan struct{})}
	h.v = NewViewer(Deps{
		Uploader: h.uploader,
		Toggler:  h.toggler,
		Dialer:   h.dialer,
		Media:    h.media,
		Canvas:   cv,
		Speaker:  h.speaker,
	}, Options{FPS: 30}, logger.Discard(), nil)
	h.start(t, "match.mp4")
	h.v.cache.Put(31, []Track{{ID: 1, Class: ClassPlayer, BBox: []float64{0, 0, 10, 10}}})

	h.media.settleAt(0)
	if _, ok := h.v.Snapshot(); !ok {
		t.Fatal("first render should make a snapshot available")
	}

	cv.mu.Lock()
	cv.hold = true
	cv.mu.Unlock()
	go h.media.settleAt(1.0)
	<-cv.entered

	done := make(chan struct{})
	go func() {
		h.v.Snapshot()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("snapshot taken while a render was half done")
	case <-time.After(50 * time.Millisecond):
	}

	close(cv.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot did not complete after the render")
	}
}
