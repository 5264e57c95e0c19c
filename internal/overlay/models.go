package overlay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Class values assigned by the detection pipeline.
const (
	ClassBall   = "0"
	ClassPlayer = "2"
)

// RGB is a color triple with 0-255 channels.
type RGB [3]uint8

// TeamLabel is the display-only team attribute of a track. The pipeline sends
// either a number, a string or null.
type TeamLabel string

// UnmarshalJSON implements json.Unmarshaler.
func (l *TeamLabel) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*l = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = TeamLabel(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("team: %w", err)
		}
		*l = TeamLabel(n.String())
	}
	return nil
}

// Track is one detected object in one frame. HasPossession records that the
// payload carried a possessed_by key, even a null one.
type Track struct {
	ID            int       `json:"id"`
	Class         string    `json:"cls"`
	Team          TeamLabel `json:"team"`
	BBox          []float64 `json:"bbox"`
	Color         *RGB      `json:"color,omitempty"`
	PossessedBy   *int      `json:"possessed_by,omitempty"`
	HasPossession bool      `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Track) UnmarshalJSON(b []byte) error {
	type plain Track
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return err
	}
	_, p.HasPossession = keys["possessed_by"]
	*t = Track(p)
	return nil
}

// FrameRecord is one message of the detection stream.
type FrameRecord struct {
	FrameID   int             `json:"frame_id"`
	Tracks    []Track         `json:"tracks"`
	Event     json.RawMessage `json:"event,omitempty"`
	EventText string          `json:"event_text,omitempty"`
}

// HasEvent reports whether the pipeline attached a detected event to the frame.
func (r FrameRecord) HasEvent() bool {
	e := bytes.TrimSpace(r.Event)
	return len(e) > 0 && !bytes.Equal(e, []byte("null"))
}

// DecodeFrameRecord parses and validates one stream payload.
func DecodeFrameRecord(data []byte) (FrameRecord, error) {
	var rec FrameRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return FrameRecord{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if rec.FrameID < 1 {
		return FrameRecord{}, fmt.Errorf("%w: frame_id %d is not positive", ErrMalformedFrame, rec.FrameID)
	}
	for i, t := range rec.Tracks {
		if len(t.BBox) != 4 {
			return FrameRecord{}, fmt.Errorf("%w: track %d has %d bbox values", ErrMalformedFrame, i, len(t.BBox))
		}
	}
	if rec.Tracks == nil {
		rec.Tracks = []Track{}
	}
	return rec, nil
}

// Label returns the text drawn under a track's box.
func (t Track) Label() string {
	team := string(t.Team)
	if team == "" {
		team = "-"
	}
	return "ID:" + strconv.Itoa(t.ID) + " T" + team
}
