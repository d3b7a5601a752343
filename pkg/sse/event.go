// Package sse provides a minimal, purpose-built SSE (Server-Sent Events)
// reader for consuming a streamed LLM response. It parses a line-oriented
// event stream into discrete events using a deliberately lenient framing
// rule: any line that is not a "tag: value" field line terminates the
// current frame, blank lines included.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event represents a single parsed SSE event, delimited by a blank (or
// otherwise non-field) line in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" (per the SSE spec, multiple data fields are joined
	// with a single newline).
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string

	// Fields holds every field seen in the frame, keyed by tag, including
	// tags the reader does not otherwise interpret. Repeated tags are
	// joined with "\n", mirroring the data-field rule.
	Fields map[string]string
}
