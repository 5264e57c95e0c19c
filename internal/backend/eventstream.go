package backend

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"match-overlay/internal/overlay"
)

const maxEventSize = 4 << 20

// EventReader decodes a text/event-stream body. Only the data field matters
// to the viewer; event names, ids and retry hints are skipped.
type EventReader struct {
	body io.ReadCloser
	br   *bufio.Reader
	line []byte
	max  int
	once sync.Once
}

// NewEventReader wraps an event-stream body.
func NewEventReader(body io.ReadCloser) *EventReader {
	return &EventReader{
		body: body,
		br:   bufio.NewReaderSize(body, 64*1024),
		max:  maxEventSize,
	}
}

// Next returns the data of the next event, joining multi-line data with
// "\n". Events without data are skipped. An event larger than the size cap
// is consumed and reported as an error wrapping overlay.ErrMalformedFrame;
// the reader stays usable. It returns io.EOF when the body ends.
func (r *EventReader) Next() ([]byte, error) {
	var data []byte
	hasData, oversized := false, false

	for {
		line, tooLong, err := r.readLine()
		if err != nil {
			switch {
			case oversized:
				return nil, r.tooLarge()
			case hasData && err == io.EOF:
				return data, nil
			}
			return nil, err
		}
		if tooLong {
			oversized = true
			data, hasData = nil, false
			continue
		}

		if len(line) == 0 {
			switch {
			case oversized:
				return nil, r.tooLarge()
			case hasData:
				return data, nil
			}
			continue
		}
		if line[0] == ':' || oversized {
			continue
		}

		field, value := line, []byte(nil)
		if i := bytes.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], line[i+1:]
			value = bytes.TrimPrefix(value, []byte(" "))
		}
		if string(field) != "data" {
			continue
		}
		if len(data)+len(value)+1 > r.max {
			oversized = true
			data, hasData = nil, false
			continue
		}
		if hasData {
			data = append(data, '\n')
		}
		data = append(data, value...)
		hasData = true
	}
}

// readLine returns the next line without its terminator. A line longer than
// the cap is drained and reported with tooLong set; its content is dropped.
func (r *EventReader) readLine() ([]byte, bool, error) {
	r.line = r.line[:0]
	tooLong := false

	for {
		chunk, isPrefix, err := r.br.ReadLine()
		if err != nil {
			if len(r.line) > 0 || tooLong {
				return r.line, tooLong, nil
			}
			return nil, false, err
		}
		if !tooLong {
			if len(r.line)+len(chunk) > r.max {
				tooLong = true
				r.line = r.line[:0]
			} else {
				r.line = append(r.line, chunk...)
			}
		}
		if !isPrefix {
			return r.line, tooLong, nil
		}
	}
}

func (r *EventReader) tooLarge() error {
	return fmt.Errorf("%w: event exceeds %d bytes", overlay.ErrMalformedFrame, r.max)
}

// Close releases the body. It is safe to call more than once.
func (r *EventReader) Close() error {
	var err error
	r.once.Do(func() { err = r.body.Close() })
	return err
}
