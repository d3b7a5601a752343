// Package relay runs the chat-relay bot: it bridges an in-game chat
// channel, a Discord webhook, and the hosted LLM Responses API. The loop is
// sequential glue over those three services; failures on any one exchange
// are logged and the loop moves on to the next chat line.
package relay

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/suremarc/computercraft/pkg/chat"
	"github.com/suremarc/computercraft/pkg/responses"
	"github.com/suremarc/computercraft/pkg/utils"
	"github.com/suremarc/computercraft/relay/worker"
)

// errorReply is said in chat when a reply could not be assembled.
const errorReply = "Sorry, I had trouble thinking of a reply."

// ChatSource yields inbound chat events and accepts styled replies.
type ChatSource interface {
	Next(ctx context.Context) (*ChatEvent, error)
	Say(ctx context.Context, name string, paragraphs []chat.Paragraph) error
}

// Replier produces an assembled reply for a chat prompt.
type Replier interface {
	CreateReply(ctx context.Context, req *responses.Request) (*chat.Reply, error)
}

// Enqueuer accepts mirror jobs for asynchronous delivery.
type Enqueuer interface {
	Enqueue(job worker.Job) bool
}

// Config is the configuration options for the relay.
type Config struct {
	// Chatbox is the in-game chat bridge.
	Chatbox ChatSource

	// Client produces replies from the Responses API.
	Client Replier

	// Pool mirrors exchanges to Discord. Optional; nil disables mirroring.
	Pool Enqueuer

	// BotName is the chat name the bot answers to and speaks as.
	BotName string

	// Model and Instructions parameterize each Responses API request.
	Model        string
	Instructions string

	// Conversation is the optional server-side conversation id carried on
	// every request so the bot keeps context between chat lines.
	Conversation string

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Relay is the chat-relay bot loop.
type Relay struct {
	config *Config
	logger *zap.Logger
}

// NewRelay creates a relay from its configuration.
func NewRelay(c *Config) *Relay {
	return &Relay{
		config: c,
		logger: c.Logger,
	}
}

// Run consumes chat events until the context is cancelled or the chat
// connection fails. Individual exchange failures never stop the loop.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay started",
		zap.String("bot_name", r.config.BotName),
		zap.String("model", r.config.Model),
	)

	for {
		ev, err := r.config.Chatbox.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("relay stopping", zap.Error(ctx.Err()))
				return nil
			}
			return err
		}

		prompt, ok := r.promptFor(ev)
		if !ok {
			continue
		}

		r.handle(ctx, ev, prompt)
	}
}

// promptFor extracts the prompt from a chat event addressed to the bot.
// Addressing is a case-insensitive bot-name prefix; the bot's own lines and
// unaddressed chatter are skipped.
func (r *Relay) promptFor(ev *ChatEvent) (string, bool) {
	if strings.EqualFold(ev.Username, r.config.BotName) {
		return "", false
	}

	trimmed := strings.TrimSpace(ev.Message)
	lowered := strings.ToLower(trimmed)
	name := strings.ToLower(r.config.BotName)
	if !strings.HasPrefix(lowered, name) {
		return "", false
	}

	prompt := strings.TrimSpace(trimmed[len(name):])
	prompt = strings.TrimLeft(prompt, ",:")
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", false
	}
	return prompt, true
}

func (r *Relay) handle(ctx context.Context, ev *ChatEvent, prompt string) {
	r.logger.Debug("handling chat prompt",
		zap.String("username", ev.Username),
		zap.String("prompt", utils.Truncate(prompt, 120)),
	)

	reply, err := r.config.Client.CreateReply(ctx, &responses.Request{
		Model:        r.config.Model,
		Instructions: r.config.Instructions,
		Conversation: r.config.Conversation,
		Input:        "<" + ev.Username + "> " + prompt,
	})
	if err != nil {
		r.logger.Error("reply assembly failed",
			zap.String("username", ev.Username),
			zap.Error(err),
		)
		r.sayError(ctx)
		return
	}

	if err := r.config.Chatbox.Say(ctx, r.config.BotName, reply.Paragraphs); err != nil {
		r.logger.Error("sending reply to chat failed", zap.Error(err))
		return
	}

	if r.config.Pool != nil {
		r.config.Pool.Enqueue(worker.Job{
			Username: ev.Username,
			Message:  ev.Message,
			Reply:    reply,
		})
	}
}

// sayError delivers the fixed fallback line. The reply that failed is never
// partially delivered.
func (r *Relay) sayError(ctx context.Context) {
	paragraphs := []chat.Paragraph{
		{chat.TextComponent{Text: errorReply, Color: "red"}},
	}
	if err := r.config.Chatbox.Say(ctx, r.config.BotName, paragraphs); err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("sending error reply to chat failed", zap.Error(err))
		}
	}
}
