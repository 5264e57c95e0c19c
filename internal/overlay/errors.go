package overlay

import "errors"

var (
	// ErrNoFile is returned when an upload is attempted without a video.
	ErrNoFile = errors.New("no video file selected")

	// ErrMatchFinished is returned when the halftime control is used after full time.
	ErrMatchFinished = errors.New("match has finished")

	// ErrTransitionInFlight is returned when the halftime control is used while
	// a previous toggle is still waiting on the backend.
	ErrTransitionInFlight = errors.New("phase transition already in progress")

	// ErrSuperseded is returned by Halftime when a new upload replaced the
	// session while the backend toggle was outstanding.
	ErrSuperseded = errors.New("session was replaced")

	// ErrUnexpected wraps a panic recovered from a collaborator or callback.
	ErrUnexpected = errors.New("unexpected failure")

	// ErrMalformedFrame wraps every stream payload decode or validation failure.
	ErrMalformedFrame = errors.New("malformed frame record")
)
