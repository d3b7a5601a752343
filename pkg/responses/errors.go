package responses

import (
	"errors"
	"fmt"
)

// ErrIncompleteStream indicates the event stream was exhausted before an
// assistant message was finalized. The caller gets no reply at all.
var ErrIncompleteStream = errors.New("stream ended without a complete response")

// UpstreamError carries an explicit mid-stream error signaled by the remote
// API. Detail is the error event's data payload, verbatim.
type UpstreamError struct {
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Detail == "" {
		return "upstream signaled an error"
	}
	return fmt.Sprintf("upstream error: %s", e.Detail)
}

// PayloadError indicates an event's data field failed to parse as JSON where
// JSON was required. Partial or garbled structured output cannot be safely
// merged into a reply, so this is always fatal to the assembly.
type PayloadError struct {
	Event string
	Err   error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Event, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}
