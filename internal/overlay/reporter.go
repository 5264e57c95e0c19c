package overlay

import (
	"fmt"
	"log/slog"
	"sync"
)

// DefaultLang is the language tag passed to the speaker when none is configured.
const DefaultLang = "en-GB"

// Speaker is the text-to-speech collaborator. Speak starts an announcement and
// returns without waiting for it to finish; Cancel stops whatever is playing.
type Speaker interface {
	Speak(text, lang string) error
	Cancel()
}

// Reporter surfaces failures in the visible status area and through speech,
// and narrates pipeline events. It never fails itself.
type Reporter struct {
	mu      sync.Mutex
	speech  sync.Mutex
	speaker Speaker
	lang    string
	log     *slog.Logger
	status  string
	message string
}

// NewReporter returns a Reporter speaking through speaker in lang. speaker may be nil.
func NewReporter(speaker Speaker, lang string, log *slog.Logger) *Reporter {
	if lang == "" {
		lang = DefaultLang
	}
	return &Reporter{speaker: speaker, lang: lang, log: log}
}

// ReportError shows message in the error area and speaks it, interrupting any
// announcement in progress.
func (r *Reporter) ReportError(message string) {
	r.mu.Lock()
	r.message = message
	r.mu.Unlock()

	r.log.Error("overlay error", slog.String("message", message))
	r.speak(message)
}

// Announce speaks text without touching the error area.
func (r *Reporter) Announce(text string) {
	r.log.Info("announcement", slog.String("text", text))
	r.speak(text)
}

// Clear empties the error area.
func (r *Reporter) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.message = ""
}

// SetStatus replaces the status line.
func (r *Reporter) SetStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

// Status returns the status line.
func (r *Reporter) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Message returns the error currently displayed, or "".
func (r *Reporter) Message() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.message
}

func (r *Reporter) speak(text string) {
	if r.speaker == nil || text == "" {
		return
	}

	r.speech.Lock()
	defer r.speech.Unlock()
	defer func() {
		if v := recover(); v != nil {
			r.log.Warn("speaker panicked", slog.String("panic", fmt.Sprint(v)))
		}
	}()

	r.speaker.Cancel()
	if err := r.speaker.Speak(text, r.lang); err != nil {
		r.log.Warn("speech failed", slog.String("error", err.Error()))
	}
}
