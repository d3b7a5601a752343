package responses_test

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/suremarc/computercraft/pkg/chat"
	"github.com/suremarc/computercraft/pkg/responses"
	"github.com/suremarc/computercraft/pkg/sse"
)

// trackingBody records closes so tests can assert the body is closed exactly
// once regardless of exit path.
type trackingBody struct {
	io.Reader
	closes int
}

func (b *trackingBody) Close() error {
	b.closes++
	return nil
}

func streamOf(body string) (*sse.Stream, *trackingBody) {
	tb := &trackingBody{Reader: strings.NewReader(body)}
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       tb,
	}
	st, err := sse.NewStream(resp)
	Expect(err).NotTo(HaveOccurred())
	return st, tb
}

func frame(event, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

func addedFrame(index int, kind, role, id string) string {
	item := fmt.Sprintf(`{"type":%q,"id":%q`, kind, id)
	if role != "" {
		item += fmt.Sprintf(`,"role":%q`, role)
	}
	item += "}"
	return frame("response.output_item.added",
		fmt.Sprintf(`{"output_index":%d,"item":%s}`, index, item))
}

func textDoneFrame(index int, textDoc string) string {
	return frame("response.output_text.done",
		fmt.Sprintf(`{"output_index":%d,"text":%q}`, index, textDoc))
}

func partialImageFrame(index, fragment int, b64 string) string {
	return frame("response.image_generation_call.partial_image",
		fmt.Sprintf(`{"output_index":%d,"partial_image_index":%d,"partial_image_b64":%q}`, index, fragment, b64))
}

func imageDoneFrame(index int, itemID string) string {
	return frame("response.image_generation_call.done",
		fmt.Sprintf(`{"output_index":%d,"item_id":%q}`, index, itemID))
}

var _ = Describe("Assemble", func() {
	Context("with a plain assistant message", func() {
		It("returns one paragraph with one component and no images", func() {
			st, tb := streamOf(
				addedFrame(0, "message", "assistant", "msg_1") +
					textDoneFrame(0, `{"paragraphs":[[{"text":"hi"}]]}`))

			reply, err := responses.Assemble(st)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Paragraphs).To(HaveLen(1))
			Expect(reply.Paragraphs[0]).To(HaveLen(1))
			Expect(reply.Paragraphs[0][0].Text).To(Equal("hi"))
			Expect(reply.Images).To(BeEmpty())
			Expect(tb.closes).To(Equal(1))
		})

		It("preserves styling on components", func() {
			st, _ := streamOf(
				addedFrame(0, "message", "assistant", "msg_1") +
					textDoneFrame(0, `{"paragraphs":[[{"text":"warning","color":"red","bold":true}]]}`))

			reply, err := responses.Assemble(st)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Paragraphs[0][0].Color).To(Equal("red"))
			Expect(reply.Paragraphs[0][0].Bold).To(BeTrue())
		})

		It("ignores text for non-assistant roles", func() {
			st, _ := streamOf(
				addedFrame(0, "message", "tool", "msg_1") +
					textDoneFrame(0, `{"paragraphs":[[{"text":"nope"}]]}`))

			_, err := responses.Assemble(st)
			Expect(err).To(MatchError(responses.ErrIncompleteStream))
		})

		It("honors last-writer-wins when an index is re-registered", func() {
			st, _ := streamOf(
				addedFrame(0, "message", "tool", "msg_1") +
					addedFrame(0, "message", "assistant", "msg_2") +
					textDoneFrame(0, `{"paragraphs":[[{"text":"hi"}]]}`))

			reply, err := responses.Assemble(st)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Paragraphs[0][0].Text).To(Equal("hi"))
		})
	})

	Context("with image generation", func() {
		It("reassembles fragments by index, not arrival order", func() {
			st, _ := streamOf(
				addedFrame(0, "message", "assistant", "msg_1") +
					addedFrame(1, "image_generation_call", "", "img_1") +
					partialImageFrame(1, 1, "BBB") +
					partialImageFrame(1, 0, "AAA") +
					partialImageFrame(1, 2, "CCC") +
					imageDoneFrame(1, "img_1") +
					textDoneFrame(0, `{"paragraphs":[[{"text":"here"}]]}`))

			reply, err := responses.Assemble(st)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Images).To(HaveLen(1))
			Expect(reply.Images[0].Filename).To(Equal("img_1.png"))
			Expect(reply.Images[0].Data).To(Equal("AAABBBCCC"))
		})

		It("keeps images that trail the final text chunk", func() {
			st, _ := streamOf(
				addedFrame(0, "message", "assistant", "msg_1") +
					addedFrame(1, "image_generation_call", "", "img_1") +
					textDoneFrame(0, `{"paragraphs":[[{"text":"here"}]]}`) +
					partialImageFrame(1, 0, "AAA") +
					imageDoneFrame(1, "img_1"))

			reply, err := responses.Assemble(st)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Images).To(HaveLen(1))
			Expect(reply.Images[0].Data).To(Equal("AAA"))
		})

		It("rejects a negative fragment index as a payload error", func() {
			st, tb := streamOf(
				addedFrame(0, "message", "assistant", "msg_1") +
					addedFrame(1, "image_generation_call", "", "img_1") +
					partialImageFrame(1, -1, "AAA"))

			var reply *chat.Reply
			var err error
			Expect(func() { reply, err = responses.Assemble(st) }).NotTo(Panic())
			Expect(reply).To(BeNil())

			var payloadErr *responses.PayloadError
			Expect(errors.As(err, &payloadErr)).To(BeTrue())
			Expect(payloadErr.Event).To(Equal("response.image_generation_call.partial_image"))
			Expect(tb.closes).To(Equal(1))
		})
	})

	Context("with an upstream error event", func() {
		It("fails and produces no reply regardless of accumulated state", func() {
			st, tb := streamOf(
				addedFrame(0, "message", "assistant", "msg_1") +
					textDoneFrame(0, `{"paragraphs":[[{"text":"hi"}]]}`) +
					frame("error", `{"message":"overloaded"}`))

			reply, err := responses.Assemble(st)
			Expect(reply).To(BeNil())

			var upstream *responses.UpstreamError
			Expect(errors.As(err, &upstream)).To(BeTrue())
			Expect(upstream.Detail).To(ContainSubstring("overloaded"))
			Expect(tb.closes).To(Equal(1))
		})
	})

	Context("with malformed payloads", func() {
		It("fails on unparsable slot descriptor JSON", func() {
			st, _ := streamOf(frame("response.output_item.added", "{not json"))

			_, err := responses.Assemble(st)
			var payloadErr *responses.PayloadError
			Expect(errors.As(err, &payloadErr)).To(BeTrue())
		})

		It("fails on unparsable paragraph JSON in output_text.done", func() {
			st, tb := streamOf(
				addedFrame(0, "message", "assistant", "msg_1") +
					textDoneFrame(0, `{broken`))

			_, err := responses.Assemble(st)
			var payloadErr *responses.PayloadError
			Expect(errors.As(err, &payloadErr)).To(BeTrue())
			Expect(tb.closes).To(Equal(1))
		})
	})

	Context("with an incomplete stream", func() {
		It("fails when no text was ever finalized", func() {
			st, tb := streamOf(
				addedFrame(0, "message", "assistant", "msg_1"))

			_, err := responses.Assemble(st)
			Expect(err).To(MatchError(responses.ErrIncompleteStream))
			Expect(tb.closes).To(Equal(1))
		})

		It("fails on an entirely empty stream", func() {
			st, _ := streamOf("")

			_, err := responses.Assemble(st)
			Expect(err).To(MatchError(responses.ErrIncompleteStream))
		})
	})

	Context("with unknown event types", func() {
		It("ignores them", func() {
			st, _ := streamOf(
				frame("response.created", `{"response":{"id":"resp_1"}}`) +
					addedFrame(0, "message", "assistant", "msg_1") +
					frame("response.output_text.delta", `{"delta":"h"}`) +
					textDoneFrame(0, `{"paragraphs":[[{"text":"hi"}]]}`) +
					frame("response.completed", `{"response":{"id":"resp_1"}}`))

			reply, err := responses.Assemble(st)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Paragraphs[0][0].Text).To(Equal("hi"))
		})
	})
})
