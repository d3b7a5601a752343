// Package worker provides an asynchronous worker pool for mirroring chat
// exchanges to Discord.
//
// The pool decouples webhook delivery from the relay's chat loop so that a
// slow or failing Discord call never delays the next in-game reply.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/suremarc/computercraft/pkg/chat"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Mirror delivers one chat exchange to Discord.
type Mirror interface {
	Mirror(ctx context.Context, username, message string, reply *chat.Reply) error
}

// Job is one chat exchange for the worker pool to deliver.
type Job struct {
	Username string
	Message  string
	Reply    *chat.Reply
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Mirror is the delivery backend.
	Mirror Mirror

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool delivers mirror jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for delivery by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("mirror job queued",
			zap.String("username", job.Username),
		)
		return true
	default:
		p.logger.Error("mirror job not queued, queue full, job dropped",
			zap.String("username", job.Username),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the chat loop has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("mirror worker stopped", zap.Uint("worker_id", id))
}

// processJob delivers a Job. Errors are logged, never propagated; a failed
// mirror must not disturb the chat loop.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if err := p.config.Mirror.Mirror(ctx, job.Username, job.Message, job.Reply); err != nil {
		p.logger.Error("async discord mirror failed",
			zap.String("username", job.Username),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("exchange mirrored",
		zap.String("username", job.Username),
	)
}
