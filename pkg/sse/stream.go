package sse

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// ErrNotEventStream indicates the HTTP response does not carry an SSE body.
var ErrNotEventStream = errors.New("response is not an event stream")

const eventStreamMediaType = "text/event-stream"

// Stream is a lazy, finite, non-restartable sequence of events read from a
// single HTTP response body. It owns the body: Close drains and closes it,
// and is safe to call on every exit path.
type Stream struct {
	body   io.ReadCloser
	reader *Reader
	closed bool
}

// NewStream wraps an HTTP response in an event stream. The response's
// Content-Type must declare text/event-stream; otherwise the body is closed
// and ErrNotEventStream is returned before any line is read.
func NewStream(resp *http.Response) (*Stream, error) {
	ct := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || !strings.EqualFold(mediaType, eventStreamMediaType) {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: content type %q", ErrNotEventStream, ct)
	}

	return &Stream{
		body:   resp.Body,
		reader: NewReader(resp.Body),
	}, nil
}

// Next returns the next non-empty event frame, or nil, nil once the stream
// is exhausted. Stream does not interpret field contents — pure framing.
func (s *Stream) Next() (*Event, error) {
	if s.closed {
		return nil, nil
	}

	return s.reader.Next()
}

// Close drains any unread bytes and closes the underlying body. Subsequent
// calls are no-ops, so callers can defer Close and still close early.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	// Drain so the HTTP transport can reuse the connection.
	_, _ = io.Copy(io.Discard, s.body)

	return s.body.Close()
}
