package overlay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"match-overlay/internal/platform/metrics"

	"github.com/google/uuid"
)

// EventSource yields the data payload of each server-pushed event. Next
// returns io.EOF when the server ends the stream. Close must be safe to call
// more than once and must unblock a pending Next.
type EventSource interface {
	Next() ([]byte, error)
	Close() error
}

// Dialer opens the detection stream.
type Dialer interface {
	Dial(ctx context.Context) (EventSource, error)
}

const streamErrorMessage = "Stream connection error."

// StreamManager owns the single live detection stream. Every session gets a
// new generation number; callbacks carrying an older generation are ignored,
// so a closed or replaced session can never touch the cache or seek.
type StreamManager struct {
	mu        sync.Mutex
	dialer    Dialer
	cache     *Cache
	sync      *Synchronizer
	reporter  *Reporter
	log       *slog.Logger
	metrics   *metrics.Metrics
	gen       uint64
	cancel    context.CancelFunc
	sessionID string
}

// NewStreamManager returns a manager with no open session.
func NewStreamManager(dialer Dialer, cache *Cache, sync *Synchronizer, reporter *Reporter, log *slog.Logger, m *metrics.Metrics) *StreamManager {
	return &StreamManager{
		dialer:   dialer,
		cache:    cache,
		sync:     sync,
		reporter: reporter,
		log:      log,
		metrics:  m,
	}
}

// Open closes any current session and starts a new one. Connection happens
// in the background; failures go to the reporter.
func (m *StreamManager) Open() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked()

	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.sessionID = uuid.NewString()

	m.log.Info("stream session opened",
		slog.String("session_id", m.sessionID),
		slog.Uint64("generation", m.gen))
	if m.metrics != nil {
		m.metrics.IncStreamSessions()
	}

	go m.run(ctx, m.gen, m.sessionID)
}

// Close ends the current session. It is a no-op when nothing is open.
func (m *StreamManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// Active reports whether a session is open.
func (m *StreamManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// closeLocked cancels the session and invalidates its generation.
// Caller must hold m.mu.
func (m *StreamManager) closeLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.cancel = nil
	m.gen++
	m.log.Info("stream session closed", slog.String("session_id", m.sessionID))
}

func (m *StreamManager) run(ctx context.Context, gen uint64, sessionID string) {
	src, err := m.dialer.Dial(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.fail(gen, fmt.Errorf("dial detection stream: %w", err))
		}
		return
	}
	defer src.Close()
	stop := context.AfterFunc(ctx, func() { src.Close() })
	defer stop()

	for {
		data, err := src.Next()
		switch {
		case err == nil:
			m.handleMessage(gen, data)
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrMalformedFrame):
			m.rejectPayload(gen, err)
		case errors.Is(err, io.EOF):
			m.finish(gen, sessionID)
			return
		default:
			m.fail(gen, err)
			return
		}
	}
}

// handleMessage applies one payload if gen is still the live session. It
// reports whether the payload was accepted.
func (m *StreamManager) handleMessage(gen uint64, data []byte) bool {
	defer recoverTo(m.reporter)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.cancel == nil {
		return false
	}

	rec, err := DecodeFrameRecord(data)
	if err != nil {
		m.rejectLocked(err)
		return false
	}

	m.cache.Put(rec.FrameID, rec.Tracks)
	m.sync.SeekToFrame(rec.FrameID)
	if m.metrics != nil {
		m.metrics.IncFramesReceived()
	}
	if rec.HasEvent() {
		m.log.Info("pipeline event",
			slog.Int("frame_id", rec.FrameID),
			slog.String("event", string(rec.Event)))
	}
	if rec.EventText != "" {
		m.reporter.Announce(rec.EventText)
	}
	return true
}

// rejectPayload drops a payload the source could not deliver intact. The
// session stays open.
func (m *StreamManager) rejectPayload(gen uint64, err error) {
	defer recoverTo(m.reporter)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.cancel == nil {
		return
	}
	m.rejectLocked(err)
}

func (m *StreamManager) rejectLocked(err error) {
	m.log.Debug("dropping stream payload", slog.String("error", err.Error()))
	if m.metrics != nil {
		m.metrics.IncMalformedFrames()
	}
	m.reporter.ReportError("Malformed stream data: " + err.Error())
}

func (m *StreamManager) fail(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.cancel == nil {
		return
	}
	m.log.Error("stream transport failed",
		slog.String("session_id", m.sessionID),
		slog.String("error", err.Error()))
	if m.metrics != nil {
		m.metrics.IncStreamErrors()
	}
	m.reporter.ReportError(streamErrorMessage)
	m.closeLocked()
}

func (m *StreamManager) finish(gen uint64, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.cancel == nil {
		return
	}
	m.log.Info("detection stream ended by server", slog.String("session_id", sessionID))
	m.closeLocked()
}

// recoverTo turns a panic in a callback into a reported error.
func recoverTo(r *Reporter) {
	if v := recover(); v != nil {
		r.ReportError(fmt.Sprintf("An unexpected error occurred: %v", v))
	}
}
