// Package chat defines the structured reply model the relay delivers to the
// in-game chat channel: ordered paragraphs of styled text components plus
// any images generated alongside the text.
package chat

import "strings"

// TextComponent is a single styled run of text within a paragraph. Styling
// fields mirror what the in-game chat renderer understands.
type TextComponent struct {
	Text      string `json:"text"`
	Color     string `json:"color,omitempty"`
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Underline bool   `json:"underline,omitempty"`
}

// Paragraph is an ordered sequence of styled components rendered as one
// chat line.
type Paragraph []TextComponent

// Image is one generated image: a synthesized filename plus the base64
// payload reassembled from streamed fragments.
type Image struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

// Reply is the terminal product of one assembled response stream. It is
// immutable once returned: on any assembly error no Reply is produced at
// all, never a partial one.
type Reply struct {
	Paragraphs []Paragraph `json:"paragraphs"`
	Images     []Image     `json:"images,omitempty"`
}

// PlainText flattens the reply's paragraphs into plain text, one line per
// paragraph. Styling is dropped. Used for logging and Discord mirroring.
func (r *Reply) PlainText() string {
	var b strings.Builder
	for i, p := range r.Paragraphs {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, c := range p {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}
