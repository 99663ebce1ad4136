package model

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
)

// Stream reads newline-delimited JSON fragments from an open generation
// response. It is not safe for concurrent use; one goroutine drives a stream.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
	closed  bool
}

func newStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	// Fragments are small, but a line carries the full JSON object; allow
	// generous headroom over bufio's default.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &Stream{
		body:    body,
		scanner: scanner,
	}
}

// Read returns the next fragment from the stream.
//
// Returns io.EOF when the stream has completed normally (a terminal marker
// was seen, or the transport closed cleanly). Any other error means the
// stream failed mid-flight; fragments returned before the error remain valid.
// Lines with empty increments and no terminal marker are skipped.
func (s *Stream) Read(ctx context.Context) (*Fragment, error) {
	if s.done || s.closed {
		return nil, io.EOF
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, &StreamError{
					Message: "failed to read stream",
					Cause:   err,
				}
			}
			// Transport closed without a terminal marker.
			s.done = true
			return nil, io.EOF
		}

		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, &ParseError{
				RawLine: string(line),
				Cause:   err,
			}
		}

		if chunk.Done {
			s.done = true
			return &Fragment{Content: chunk.Response, Done: true}, nil
		}

		// Empty increments are skipped, not forwarded.
		if chunk.Response == "" {
			continue
		}

		return &Fragment{Content: chunk.Response}, nil
	}
}

// Close releases the underlying response body. Closing mid-stream cancels
// the remainder of the generation. Close is idempotent.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
