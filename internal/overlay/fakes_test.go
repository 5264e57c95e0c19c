package overlay

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"match-overlay/internal/platform/logger"
)

// fakeMedia records seeks and settles only when the test says so.
type fakeMedia struct {
	mu       sync.Mutex
	info     MediaInfo
	loadErr  error
	loaded   []string
	seeks    []float64
	current  float64
	frame    image.Image
	onSeeked func()
	closed   bool
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		info:  MediaInfo{Width: 640, Height: 360, FPS: 30},
		frame: image.NewRGBA(image.Rect(0, 0, 640, 360)),
	}
}

func (m *fakeMedia) Load(ctx context.Context, url string) (MediaInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = append(m.loaded, url)
	if m.loadErr != nil {
		return MediaInfo{}, m.loadErr
	}
	m.current = 0
	return m.info, nil
}

func (m *fakeMedia) Seek(ts float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeks = append(m.seeks, ts)
	m.current = ts
}

func (m *fakeMedia) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *fakeMedia) Frame() image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

func (m *fakeMedia) OnSeeked(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSeeked = fn
}

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// settle fires the seek callback the way the real surface does: on the
// caller's goroutine, with no media lock held.
func (m *fakeMedia) settle() {
	m.mu.Lock()
	cb := m.onSeeked
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (m *fakeMedia) settleAt(ts float64) {
	m.mu.Lock()
	m.current = ts
	m.mu.Unlock()
	m.settle()
}

func (m *fakeMedia) seekLog() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.seeks...)
}

type drawCall struct {
	op         string
	x, y, w, h float64
	r          float64
	text       string
	color      color.Color
}

type recordingCanvas struct {
	mu            sync.Mutex
	width, height int
	calls         []drawCall
}

func (c *recordingCanvas) Resize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width, c.height = width, height
	c.calls = nil
}

func (c *recordingCanvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

func (c *recordingCanvas) DrawFrame(frame image.Image) {
	c.record(drawCall{op: "frame"})
}

func (c *recordingCanvas) StrokeRect(x, y, w, h, lineWidth float64, col color.Color) {
	c.record(drawCall{op: "rect", x: x, y: y, w: w, h: h, color: col})
}

func (c *recordingCanvas) FillText(text string, x, y float64, col color.Color) {
	c.record(drawCall{op: "text", x: x, y: y, text: text, color: col})
}

func (c *recordingCanvas) FillCircle(cx, cy, r float64, col color.Color) {
	c.record(drawCall{op: "circle", x: cx, y: cy, r: r, color: col})
}

func (c *recordingCanvas) Snapshot() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return image.NewRGBA(image.Rect(0, 0, c.width, c.height))
}

func (c *recordingCanvas) record(d drawCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, d)
}

func (c *recordingCanvas) drawn() []drawCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]drawCall(nil), c.calls...)
}

func (c *recordingCanvas) ops(op string) []drawCall {
	var out []drawCall
	for _, d := range c.drawn() {
		if d.op == op {
			out = append(out, d)
		}
	}
	return out
}

// fakeSpeaker logs "cancel" and "speak:<text>" in call order.
type fakeSpeaker struct {
	mu        sync.Mutex
	log       []string
	lang      string
	err       error
	panicWith any
}

func (s *fakeSpeaker) Speak(text, lang string) error {
	s.mu.Lock()
	s.log = append(s.log, "speak:"+text)
	s.lang = lang
	err, p := s.err, s.panicWith
	s.mu.Unlock()
	if p != nil {
		panic(p)
	}
	return err
}

func (s *fakeSpeaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, "cancel")
}

func (s *fakeSpeaker) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

func (s *fakeSpeaker) spoke(text string) bool {
	for _, c := range s.calls() {
		if c == "speak:"+text {
			return true
		}
	}
	return false
}

type fakeUploader struct {
	mu        sync.Mutex
	filename  string
	err       error
	panicWith any
	calls     int
	last      Upload
}

func (u *fakeUploader) Upload(ctx context.Context, up Upload) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.last = up
	if u.panicWith != nil {
		panic(u.panicWith)
	}
	if u.err != nil {
		return "", u.err
	}
	if u.filename != "" {
		return u.filename, nil
	}
	return up.Name, nil
}

func (u *fakeUploader) MediaURL(filename string) string {
	return "http://backend/uploads/" + filename
}

func (u *fakeUploader) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

// fakeToggler blocks on block, when set, after signalling entered.
type fakeToggler struct {
	mu      sync.Mutex
	err     error
	calls   int
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeToggler) ToggleHalftime(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	err, block, entered := f.err, f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeToggler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSource is an EventSource fed by the test.
type fakeSource struct {
	msgs   chan []byte
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		msgs:   make(chan []byte, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *fakeSource) Next() ([]byte, error) {
	select {
	case <-s.closed:
		return nil, io.ErrClosedPipe
	default:
	}
	select {
	case data := <-s.msgs:
		return data, nil
	case err := <-s.errs:
		return nil, err
	case <-s.closed:
		return nil, io.ErrClosedPipe
	}
}

func (s *fakeSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSource) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSource) send(data string) {
	s.msgs <- []byte(data)
}

type fakeDialer struct {
	mu     sync.Mutex
	err    error
	dialed chan *fakeSource
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeSource, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context) (EventSource, error) {
	d.mu.Lock()
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	src := newFakeSource()
	d.dialed <- src
	return src, nil
}

func (d *fakeDialer) next(t *testing.T) *fakeSource {
	t.Helper()
	select {
	case src := <-d.dialed:
		return src
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the stream to be dialed")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errBoom = errors.New("boom")

type harness struct {
	v        *Viewer
	media    *fakeMedia
	canvas   *recordingCanvas
	speaker  *fakeSpeaker
	uploader *fakeUploader
	toggler  *fakeToggler
	dialer   *fakeDialer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		media:    newFakeMedia(),
		canvas:   &recordingCanvas{},
		speaker:  &fakeSpeaker{},
		uploader: &fakeUploader{},
		toggler:  &fakeToggler{},
		dialer:   newFakeDialer(),
	}
	h.v = NewViewer(Deps{
		Uploader: h.uploader,
		Toggler:  h.toggler,
		Dialer:   h.dialer,
		Media:    h.media,
		Canvas:   h.canvas,
		Speaker:  h.speaker,
	}, Options{FPS: 30, Lang: "en-GB"}, logger.Discard(), nil)
	t.Cleanup(func() { h.v.Close() })
	return h
}

func videoUpload(name string) Upload {
	return Upload{Name: name, File: strings.NewReader("video bytes"), Direction: DirectionRight}
}

// start uploads name and returns the dialed stream source.
func (h *harness) start(t *testing.T, name string) *fakeSource {
	t.Helper()
	if _, err := h.v.Upload(context.Background(), videoUpload(name)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return h.dialer.next(t)
}
