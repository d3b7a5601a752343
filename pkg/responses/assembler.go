// Package responses consumes a streamed Responses API reply over SSE and
// reassembles it into a single structured chat reply: incremental
// line-oriented parsing, per-output-index slot state, partial image
// reassembly, and error-versus-completion termination.
package responses

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/suremarc/computercraft/pkg/chat"
	"github.com/suremarc/computercraft/pkg/sse"
)

// slot accumulates state for one numbered output item within a single
// streamed response. Slots are owned exclusively by one Assemble call and
// never escape it.
type slot struct {
	kind   string
	role   string
	itemID string

	// fragments holds base64 image chunks placed by fragment index, not
	// arrival order. Gaps are permitted until the slot's done event.
	fragments []string
}

// Assemble consumes the event stream end-to-end and returns exactly one
// assembled reply, or fails. The stream's body is closed on every exit path.
//
// Termination is lenient: the stream is read to exhaustion so that image
// events trailing the final text chunk are never dropped. Exhaustion with
// no finalized assistant text fails with ErrIncompleteStream.
func Assemble(stream *sse.Stream) (*chat.Reply, error) {
	defer stream.Close()

	slots := make(map[int]*slot)

	var paragraphs []chat.Paragraph
	var images []chat.Image
	haveText := false

	for {
		ev, err := stream.Next()
		if err != nil {
			return nil, err
		}
		if ev == nil {
			break
		}

		switch ev.Type {
		case eventError:
			return nil, &UpstreamError{Detail: ev.Data}

		case eventItemAdded:
			var payload itemAddedPayload
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				return nil, &PayloadError{Event: ev.Type, Err: err}
			}
			// Re-registering an index is last-writer-wins.
			slots[payload.OutputIndex] = &slot{
				kind:   payload.Item.Type,
				role:   payload.Item.Role,
				itemID: payload.Item.ID,
			}

		case eventTextDone:
			var payload textDonePayload
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				return nil, &PayloadError{Event: ev.Type, Err: err}
			}
			s, ok := slots[payload.OutputIndex]
			if !ok || s.kind != itemKindMessage || s.role != roleAssistant {
				// Only the assistant message feeds the final paragraphs.
				continue
			}
			var doc struct {
				Paragraphs []chat.Paragraph `json:"paragraphs"`
			}
			if err := json.Unmarshal([]byte(payload.Text), &doc); err != nil {
				return nil, &PayloadError{Event: ev.Type, Err: err}
			}
			paragraphs = doc.Paragraphs
			haveText = true

		case eventPartialImage:
			var payload partialImagePayload
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				return nil, &PayloadError{Event: ev.Type, Err: err}
			}
			if payload.PartialImageIndex < 0 {
				return nil, &PayloadError{
					Event: ev.Type,
					Err:   fmt.Errorf("negative partial_image_index %d", payload.PartialImageIndex),
				}
			}
			s, ok := slots[payload.OutputIndex]
			if !ok {
				continue
			}
			for len(s.fragments) <= payload.PartialImageIndex {
				s.fragments = append(s.fragments, "")
			}
			s.fragments[payload.PartialImageIndex] = payload.PartialImageB64

		case eventImageDone:
			var payload imageDonePayload
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				return nil, &PayloadError{Event: ev.Type, Err: err}
			}
			s, ok := slots[payload.OutputIndex]
			if !ok {
				continue
			}
			itemID := s.itemID
			if itemID == "" {
				itemID = payload.ItemID
			}
			images = append(images, chat.Image{
				Filename: itemID + ".png",
				Data:     strings.Join(s.fragments, ""),
			})

		default:
			// Unknown event types are ignored for forward compatibility.
		}
	}

	if !haveText {
		return nil, ErrIncompleteStream
	}

	return &chat.Reply{
		Paragraphs: paragraphs,
		Images:     images,
	}, nil
}
