package relay

import (
	"context"
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/suremarc/computercraft/pkg/chat"
	"github.com/suremarc/computercraft/pkg/responses"
	"github.com/suremarc/computercraft/relay/worker"
)

// fakeChatbox replays scripted events and records what the bot says.
type fakeChatbox struct {
	events []*ChatEvent
	said   []sayMessage
	sayErr error
}

func (f *fakeChatbox) Next(_ context.Context) (*ChatEvent, error) {
	if len(f.events) == 0 {
		return nil, io.EOF
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeChatbox) Say(_ context.Context, name string, paragraphs []chat.Paragraph) error {
	if f.sayErr != nil {
		return f.sayErr
	}
	f.said = append(f.said, sayMessage{Name: name, Paragraphs: paragraphs})
	return nil
}

// fakeReplier returns a canned reply or error and records requests.
type fakeReplier struct {
	reply *chat.Reply
	err   error
	reqs  []*responses.Request
}

func (f *fakeReplier) CreateReply(_ context.Context, req *responses.Request) (*chat.Reply, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

// fakeEnqueuer records enqueued jobs.
type fakeEnqueuer struct {
	jobs []worker.Job
}

func (f *fakeEnqueuer) Enqueue(job worker.Job) bool {
	f.jobs = append(f.jobs, job)
	return true
}

var _ = Describe("Relay", func() {
	var (
		chatbox *fakeChatbox
		replier *fakeReplier
		pool    *fakeEnqueuer
		relay   *Relay
	)

	canned := &chat.Reply{
		Paragraphs: []chat.Paragraph{
			{chat.TextComponent{Text: "hello there"}},
		},
	}

	newRelay := func() *Relay {
		return NewRelay(&Config{
			Chatbox:      chatbox,
			Client:       replier,
			Pool:         pool,
			BotName:      "computer",
			Model:        "gpt-4.1-mini",
			Instructions: "be brief",
			Conversation: "conv_abc",
			Logger:       zap.NewNop(),
		})
	}

	BeforeEach(func() {
		chatbox = &fakeChatbox{}
		replier = &fakeReplier{reply: canned}
		pool = &fakeEnqueuer{}
	})

	It("answers a message addressed to the bot", func() {
		chatbox.events = []*ChatEvent{
			{Username: "steve", Message: "computer, what is redstone?"},
		}
		relay = newRelay()

		Expect(relay.Run(context.Background())).To(MatchError(io.EOF))

		Expect(replier.reqs).To(HaveLen(1))
		Expect(replier.reqs[0].Input).To(Equal("<steve> what is redstone?"))
		Expect(replier.reqs[0].Model).To(Equal("gpt-4.1-mini"))
		Expect(replier.reqs[0].Conversation).To(Equal("conv_abc"))

		Expect(chatbox.said).To(HaveLen(1))
		Expect(chatbox.said[0].Name).To(Equal("computer"))
		Expect(chatbox.said[0].Paragraphs).To(Equal(canned.Paragraphs))
	})

	It("ignores chatter not addressed to the bot", func() {
		chatbox.events = []*ChatEvent{
			{Username: "steve", Message: "anyone seen my pickaxe?"},
			{Username: "alex", Message: "nope"},
		}
		relay = newRelay()

		Expect(relay.Run(context.Background())).To(MatchError(io.EOF))
		Expect(replier.reqs).To(BeEmpty())
		Expect(chatbox.said).To(BeEmpty())
	})

	It("ignores the bot's own lines even when they start with its name", func() {
		chatbox.events = []*ChatEvent{
			{Username: "computer", Message: "computer says hi"},
		}
		relay = newRelay()

		Expect(relay.Run(context.Background())).To(MatchError(io.EOF))
		Expect(replier.reqs).To(BeEmpty())
	})

	It("ignores an addressed message with no prompt", func() {
		chatbox.events = []*ChatEvent{
			{Username: "steve", Message: "computer"},
			{Username: "steve", Message: "computer, "},
		}
		relay = newRelay()

		Expect(relay.Run(context.Background())).To(MatchError(io.EOF))
		Expect(replier.reqs).To(BeEmpty())
	})

	It("matches the bot name case-insensitively", func() {
		chatbox.events = []*ChatEvent{
			{Username: "steve", Message: "Computer: hello"},
		}
		relay = newRelay()

		Expect(relay.Run(context.Background())).To(MatchError(io.EOF))
		Expect(replier.reqs).To(HaveLen(1))
		Expect(replier.reqs[0].Input).To(Equal("<steve> hello"))
	})

	It("says a fixed fallback line when assembly fails", func() {
		chatbox.events = []*ChatEvent{
			{Username: "steve", Message: "computer draw me a map"},
		}
		replier.err = errors.New("upstream exploded")
		relay = newRelay()

		Expect(relay.Run(context.Background())).To(MatchError(io.EOF))

		Expect(chatbox.said).To(HaveLen(1))
		Expect(chatbox.said[0].Paragraphs).To(HaveLen(1))
		Expect(chatbox.said[0].Paragraphs[0][0].Text).To(Equal(errorReply))
		Expect(pool.jobs).To(BeEmpty())
	})

	It("keeps the loop running after a failed exchange", func() {
		chatbox.events = []*ChatEvent{
			{Username: "steve", Message: "computer first"},
			{Username: "alex", Message: "computer second"},
		}
		relay = newRelay()

		Expect(relay.Run(context.Background())).To(MatchError(io.EOF))
		Expect(replier.reqs).To(HaveLen(2))
	})

	It("enqueues the exchange for Discord mirroring", func() {
		chatbox.events = []*ChatEvent{
			{Username: "steve", Message: "computer, hi"},
		}
		relay = newRelay()

		Expect(relay.Run(context.Background())).To(MatchError(io.EOF))

		Expect(pool.jobs).To(HaveLen(1))
		Expect(pool.jobs[0].Username).To(Equal("steve"))
		Expect(pool.jobs[0].Message).To(Equal("computer, hi"))
		Expect(pool.jobs[0].Reply).To(Equal(canned))
	})

	It("runs without a mirror pool", func() {
		chatbox.events = []*ChatEvent{
			{Username: "steve", Message: "computer, hi"},
		}
		pool = nil
		relay = NewRelay(&Config{
			Chatbox: chatbox,
			Client:  replier,
			BotName: "computer",
			Logger:  zap.NewNop(),
		})

		Expect(relay.Run(context.Background())).To(MatchError(io.EOF))
		Expect(chatbox.said).To(HaveLen(1))
	})

	It("returns nil when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		relay = newRelay()

		Expect(relay.Run(ctx)).To(Succeed())
	})
})
