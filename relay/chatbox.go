package relay

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/suremarc/computercraft/pkg/chat"
)

// ChatEvent is one inbound chat line from the in-game chat bridge.
type ChatEvent struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// sayMessage is the outbound frame the chat peripheral renders. Each
// paragraph becomes one chat line of styled components.
type sayMessage struct {
	Name       string           `json:"name"`
	Paragraphs []chat.Paragraph `json:"paragraphs"`
}

// Chatbox is a websocket client for the in-game chat bridge. It yields
// inbound chat events and sends styled replies back.
type Chatbox struct {
	conn   *websocket.Conn
	logger *zap.Logger
}

// DialChatbox connects to the chat bridge at the given websocket URL.
func DialChatbox(ctx context.Context, url string, logger *zap.Logger) (*Chatbox, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing chatbox at %s: %w", url, err)
	}

	logger.Info("connected to chatbox", zap.String("url", url))

	return &Chatbox{
		conn:   conn,
		logger: logger,
	}, nil
}

// Next blocks until the next chat event arrives.
func (c *Chatbox) Next(ctx context.Context) (*ChatEvent, error) {
	var ev ChatEvent
	if err := wsjson.Read(ctx, c.conn, &ev); err != nil {
		return nil, fmt.Errorf("reading chat event: %w", err)
	}
	return &ev, nil
}

// Say sends reply paragraphs to the chat under the given speaker name.
func (c *Chatbox) Say(ctx context.Context, name string, paragraphs []chat.Paragraph) error {
	msg := sayMessage{
		Name:       name,
		Paragraphs: paragraphs,
	}
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return fmt.Errorf("sending chat message: %w", err)
	}
	return nil
}

// Close closes the websocket connection.
func (c *Chatbox) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
