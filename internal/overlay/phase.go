package overlay

// Phase is the match lifecycle stage that gates streaming and rendering.
type Phase int

const (
	PhaseFirst Phase = iota
	PhaseHalftime
	PhaseSecond
	PhaseFinished
)

// String returns the phase name used in logs and the state projection.
func (p Phase) String() string {
	switch p {
	case PhaseFirst:
		return "first"
	case PhaseHalftime:
		return "halftime"
	case PhaseSecond:
		return "second"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Active reports whether the detection stream may run and overlays may be drawn.
func (p Phase) Active() bool {
	return p == PhaseFirst || p == PhaseSecond
}

// ControlLabel is the caption of the halftime control while in p.
func (p Phase) ControlLabel() string {
	switch p {
	case PhaseFirst:
		return "Halftime"
	case PhaseHalftime:
		return "Start 2nd Half"
	default:
		return "Full Time"
	}
}

// StatusText is the status line shown after entering p through the halftime control.
func (p Phase) StatusText() string {
	switch p {
	case PhaseHalftime:
		return "Halftime — detections paused."
	case PhaseSecond:
		return "Second half started — detections resumed."
	case PhaseFinished:
		return "Thank you for using Murdock VAR system"
	default:
		return ""
	}
}

// Match is the four-state phase machine. It is not safe for concurrent use;
// the Viewer owns it under its own lock.
type Match struct {
	phase Phase
}

// NewMatch returns a match in the first half.
func NewMatch() *Match {
	return &Match{phase: PhaseFirst}
}

// Phase returns the current phase.
func (m *Match) Phase() Phase {
	return m.phase
}

// ControlEnabled reports whether the halftime control accepts input.
func (m *Match) ControlEnabled() bool {
	return m.phase != PhaseFinished
}

// Advance moves to the next phase. In PhaseFinished it returns ErrMatchFinished
// and leaves the phase untouched.
func (m *Match) Advance() (Phase, error) {
	if m.phase == PhaseFinished {
		return m.phase, ErrMatchFinished
	}
	m.phase++
	return m.phase, nil
}

// Reset returns the match to the first half. Only a new upload does this.
func (m *Match) Reset() {
	m.phase = PhaseFirst
}
