package sse

import (
	"bufio"
	"io"
	"strings"
)

// lineKind classifies a raw line from the stream. Framing decisions hang off
// this classification alone, which keeps the boundary condition auditable:
// a frame ends on anything that is not a field or a comment.
type lineKind int

const (
	lineBlank lineKind = iota
	lineComment
	lineField
	lineMalformed
)

// classifyLine splits a raw line into its field tag and value. Only lines
// containing a colon carry a field; the value has a single leading space
// stripped per the SSE spec. Lines starting with ':' are comments.
func classifyLine(raw string) (tag, value string, kind lineKind) {
	if raw == "" {
		return "", "", lineBlank
	}
	if strings.HasPrefix(raw, ":") {
		return "", "", lineComment
	}
	before, after, ok := strings.Cut(raw, ":")
	if !ok {
		return "", "", lineMalformed
	}
	return before, strings.TrimPrefix(after, " "), lineField
}

// Reader incrementally decodes SSE events from a source io.Reader.
//
// Reader is not restartable: once the source is exhausted, Next keeps
// returning (nil, nil). Framing is lenient on purpose — a blank line ends
// the current frame normally, and a malformed (colon-free) line flushes
// whatever fields were accumulated so far, matching the upstream framing
// convention rather than strict RFC behavior.
type Reader struct {
	scanner *bufio.Scanner

	// current accumulates fields for the event being built in the current scan.
	current *Event
	hasData bool
}

// NewReader returns a Reader that parses SSE events from src.
func NewReader(src io.Reader) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Reader{
		scanner: scanner,
		current: newEvent(),
	}
}

// Next returns the next parsed SSE event from the scanner. It blocks until a
// complete event is available (terminated by a blank or malformed line in
// the stream). Next returns nil, nil when the source is exhausted.
//
// Transport errors from the underlying reader are fatal: they surface once
// and the caller is expected to abort the whole parse.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Text()

		tag, value, kind := classifyLine(raw)

		switch kind {
		case lineBlank, lineMalformed:
			// Both end the current frame. A blank line is the normal
			// terminator; anything else that fails the "tag: value" shape
			// flushes the partial frame as-is.
			if r.hasData {
				current := r.current
				r.reset()
				return current, nil
			}
			// Terminator with no accumulated fields — skip (e.g. leading
			// blank lines or keep-alive newlines).

		case lineComment:
			// Lines starting with ':' are comments. Skip them.

		case lineField:
			r.addField(tag, value)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// Source exhausted and no error from scanner.
	// If there is an in-progress event (stream ended without a trailing
	// terminator), yield it once.
	if r.hasData {
		ev := r.current
		r.reset()
		return ev, nil
	}

	return nil, nil
}

// addField accumulates one parsed field into the current event. The "event",
// "data" and "id" tags additionally populate the typed accessors.
func (r *Reader) addField(tag, value string) {
	if prev, ok := r.current.Fields[tag]; ok && prev != "" {
		r.current.Fields[tag] = prev + "\n" + value
	} else {
		r.current.Fields[tag] = value
	}
	r.hasData = true

	switch tag {
	case "data":
		if r.current.Data != "" {
			// Multiple data fields are joined with "\n".
			r.current.Data += "\n"
		}
		r.current.Data += value
	case "event":
		r.current.Type = value
	case "id":
		r.current.ID = value
	}
}

// reset clears the accumulated event state for the next frame.
func (r *Reader) reset() {
	r.current = newEvent()
	r.hasData = false
}

func newEvent() *Event {
	return &Event{Fields: make(map[string]string)}
}
