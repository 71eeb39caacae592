// Package sse scans Server-Sent-Events streams into discrete events.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Event is one dispatched SSE event. Data joins multi-line data fields
// with newlines, per the SSE wire format.
type Event struct {
	Name string
	Data []byte
}

// Scanner reads events from an SSE response body.
type Scanner struct {
	r   *bufio.Reader
	err error
}

// NewScanner returns a scanner over r. Lines longer than the default
// bufio buffer are handled; provider deltas can be arbitrarily large.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next event, or io.EOF when the stream is exhausted.
// Comment lines and unknown fields are skipped per the SSE spec.
func (s *Scanner) Next() (Event, error) {
	if s.err != nil {
		return Event{}, s.err
	}
	var ev Event
	var data [][]byte
	for {
		line, err := s.readLine()
		if err != nil {
			s.err = err
			// A partially accumulated event on EOF is dispatched so a
			// final frame without a trailing blank line is not lost.
			if err == io.EOF && len(data) > 0 {
				ev.Data = bytes.Join(data, []byte("\n"))
				return ev, nil
			}
			return Event{}, err
		}
		if len(line) == 0 {
			// Blank line dispatches the event, if any fields were seen.
			if len(data) == 0 && ev.Name == "" {
				continue
			}
			ev.Data = bytes.Join(data, []byte("\n"))
			return ev, nil
		}
		if line[0] == ':' {
			continue
		}
		field, value, _ := strings.Cut(string(line), ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, []byte(value))
		}
	}
}

func (s *Scanner) readLine() ([]byte, error) {
	var full []byte
	for {
		line, isPrefix, err := s.r.ReadLine()
		if err != nil {
			return nil, err
		}
		if full == nil && !isPrefix {
			out := make([]byte, len(line))
			copy(out, line)
			return out, nil
		}
		full = append(full, line...)
		if !isPrefix {
			return full, nil
		}
	}
}
