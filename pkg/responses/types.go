package responses

// Event names the assembler recognizes. Anything else is ignored for
// forward compatibility.
const (
	eventError        = "error"
	eventItemAdded    = "response.output_item.added"
	eventTextDone     = "response.output_text.done"
	eventPartialImage = "response.image_generation_call.partial_image"
	eventImageDone    = "response.image_generation_call.done"
)

// Output item kinds reported by output_item.added.
const (
	itemKindMessage         = "message"
	itemKindImageGeneration = "image_generation_call"

	roleAssistant = "assistant"
)

// outputItem is the slot descriptor embedded in an output_item.added event.
type outputItem struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// itemAddedPayload is the data document of response.output_item.added.
type itemAddedPayload struct {
	OutputIndex int        `json:"output_index"`
	Item        outputItem `json:"item"`
}

// textDonePayload is the data document of response.output_text.done. Text is
// itself a JSON document carrying the reply's paragraph sequence.
type textDonePayload struct {
	OutputIndex int    `json:"output_index"`
	Text        string `json:"text"`
}

// partialImagePayload is the data document of
// response.image_generation_call.partial_image. Fragments carry their own
// position; network delivery order is not guaranteed to match it.
type partialImagePayload struct {
	OutputIndex       int    `json:"output_index"`
	PartialImageIndex int    `json:"partial_image_index"`
	PartialImageB64   string `json:"partial_image_b64"`
}

// imageDonePayload is the data document of
// response.image_generation_call.done.
type imageDonePayload struct {
	OutputIndex int    `json:"output_index"`
	ItemID      string `json:"item_id"`
}
