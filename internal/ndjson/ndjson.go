// Package ndjson scans newline-delimited-JSON streams into discrete
// frames.
package ndjson

import (
	"bufio"
	"io"
)

// Scanner reads one JSON document per line from a stream. Blank lines
// are skipped.
type Scanner struct {
	r   *bufio.Reader
	err error
}

// NewScanner returns a scanner over r. Lines longer than the default
// bufio buffer are handled; provider deltas can be arbitrarily large.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next non-empty line, or io.EOF when the stream is
// exhausted. A final line without a trailing newline is still returned.
func (s *Scanner) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	for {
		line, err := s.readLine()
		if err != nil {
			s.err = err
			if err == io.EOF && len(line) > 0 {
				return line, nil
			}
			return nil, err
		}
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

func (s *Scanner) readLine() ([]byte, error) {
	var full []byte
	for {
		line, isPrefix, err := s.r.ReadLine()
		if err != nil {
			return full, err
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
