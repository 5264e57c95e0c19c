// Package speech provides text-to-speech announcers for the viewer.
package speech

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Command speaks by running an external TTS program such as espeak-ng. Only
// one utterance plays at a time; Cancel kills the one in progress.
type Command struct {
	mu   sync.Mutex
	name string
	args []string
	log  *slog.Logger
	cur  *exec.Cmd
}

// NewCommand parses a command line like "espeak-ng -s 160". The voice and the
// text are appended per utterance as "-v <lang> -- <text>".
func NewCommand(commandLine string, log *slog.Logger) (*Command, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty speech command")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("speech command %q: %w", fields[0], err)
	}
	return &Command{name: fields[0], args: fields[1:], log: log}, nil
}

// Speak starts speaking text and returns without waiting for it to finish.
func (c *Command) Speak(text, lang string) error {
	cmd := exec.Command(c.name, c.utteranceArgs(text, lang)...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.name, err)
	}
	c.cur = cmd

	go func() {
		err := cmd.Wait()
		c.mu.Lock()
		if c.cur == cmd {
			c.cur = nil
		}
		c.mu.Unlock()
		if err != nil {
			c.log.Debug("speech process ended", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// utteranceArgs appends the voice and the text. "--" ends option parsing so
// text from the stream that starts with a dash is spoken, not interpreted.
func (c *Command) utteranceArgs(text, lang string) []string {
	args := append([]string{}, c.args...)
	if v := Voice(lang); v != "" {
		args = append(args, "-v", v)
	}
	return append(args, "--", text)
}

// Cancel stops the utterance in progress, if any.
func (c *Command) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Speaking reports whether an utterance is in progress.
func (c *Command) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}

func (c *Command) stopLocked() {
	if c.cur == nil || c.cur.Process == nil {
		return
	}
	_ = c.cur.Process.Kill()
	c.cur = nil
}

// Voice maps a BCP 47 tag such as "en-GB" to an espeak voice name.
func Voice(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

// Nop drops every utterance. It is used when no TTS program is configured.
type Nop struct {
	log *slog.Logger
}

// NewNop returns a speaker that only logs at debug level.
func NewNop(log *slog.Logger) Nop {
	return Nop{log: log}
}

// Speak implements overlay.Speaker.
func (n Nop) Speak(text, lang string) error {
	if n.log != nil {
		n.log.Debug("speech disabled", slog.String("text", text), slog.String("lang", lang))
	}
	return nil
}

// Cancel implements overlay.Speaker.
func (n Nop) Cancel() {}
