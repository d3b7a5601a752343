package worker

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/suremarc/computercraft/pkg/chat"
)

// fakeMirror records deliveries, optionally blocking until released.
type fakeMirror struct {
	mu        sync.Mutex
	delivered []Job
	err       error
	block     chan struct{}
}

func (f *fakeMirror) Mirror(_ context.Context, username, message string, reply *chat.Reply) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, Job{Username: username, Message: message, Reply: reply})
	return f.err
}

func (f *fakeMirror) jobs() []Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Job(nil), f.delivered...)
}

var _ = Describe("Pool", func() {
	var mirror *fakeMirror

	BeforeEach(func() {
		mirror = &fakeMirror{}
	})

	It("delivers enqueued jobs", func() {
		pool, err := NewPool(&Config{
			Mirror: mirror,
			Logger: zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		job := Job{
			Username: "steve",
			Message:  "computer, hi",
			Reply:    &chat.Reply{Paragraphs: []chat.Paragraph{{chat.TextComponent{Text: "hi"}}}},
		}
		Expect(pool.Enqueue(job)).To(BeTrue())

		pool.Close()
		Expect(mirror.jobs()).To(ConsistOf(job))
	})

	It("drains every in-flight job on Close", func() {
		pool, err := NewPool(&Config{
			Mirror:     mirror,
			NumWorkers: 2,
			Logger:     zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		for range 20 {
			Expect(pool.Enqueue(Job{Username: "steve"})).To(BeTrue())
		}

		pool.Close()
		Expect(mirror.jobs()).To(HaveLen(20))
	})

	It("drops jobs when the queue is full", func() {
		mirror.block = make(chan struct{})
		pool, err := NewPool(&Config{
			Mirror:     mirror,
			NumWorkers: 1,
			QueueSize:  1,
			Logger:     zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		// First job occupies the single worker, second fills the queue.
		pool.Enqueue(Job{Username: "a"})
		pool.Enqueue(Job{Username: "b"})

		Eventually(func() bool {
			return pool.Enqueue(Job{Username: "c"})
		}).Should(BeFalse())

		close(mirror.block)
		pool.Close()
	})

	It("keeps working after a delivery failure", func() {
		mirror.err = errors.New("webhook down")
		pool, err := NewPool(&Config{
			Mirror: mirror,
			Logger: zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(pool.Enqueue(Job{Username: "steve"})).To(BeTrue())
		Expect(pool.Enqueue(Job{Username: "alex"})).To(BeTrue())

		pool.Close()
		Expect(mirror.jobs()).To(HaveLen(2))
	})

	It("applies worker and queue defaults", func() {
		pool, err := NewPool(&Config{
			Mirror: mirror,
			Logger: zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(pool.config.NumWorkers).To(Equal(uint(3)))
		Expect(pool.config.QueueSize).To(Equal(uint(256)))
		pool.Close()
	})
})
