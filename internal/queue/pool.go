// Package queue hands started jobs to workers, either in process or through
// Redis Streams.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/clipforge/internal/ports"
)

// Handler processes one job. A nil error acknowledges the delivery.
type Handler func(ctx context.Context, jobID string) error

var ErrClosed = errors.New("queue is shutting down")

type Pool struct {
	log     logrus.FieldLogger
	workers int
	timeout time.Duration

	ch   chan string
	wg   sync.WaitGroup
	once sync.Once

	// done is closed by Shutdown; ch is closed once no Enqueue is sending.
	done    chan struct{}
	senders sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan string, n)
		}
	}
}

// WithJobTimeout bounds a single job. Zero means no limit.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPool(log logrus.FieldLogger, opts ...Option) *Pool {
	if log == nil {
		log = logrus.New()
	}
	p := &Pool{
		log:     log,
		workers: 2,
		ch:      make(chan string, 256),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the workers. Jobs enqueued before Start wait in the buffer.
// Cancelling ctx cancels running jobs.
func (p *Pool) Start(ctx context.Context, h Handler) {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				log := p.log.WithField("worker_id", workerID)
				log.Debug("worker started")
				for id := range p.ch {
					p.run(ctx, h, id, log)
				}
				log.Debug("worker stopped")
			}(i + 1)
		}
	})
}

func (p *Pool) run(ctx context.Context, h Handler, id string, log logrus.FieldLogger) {
	jctx, cancel := ctx, context.CancelFunc(func() {})
	if p.timeout > 0 {
		jctx, cancel = context.WithTimeout(ctx, p.timeout)
	}
	defer cancel()

	log = log.WithField("job_id", id)
	if err := h(jctx, id); err != nil {
		log.WithError(err).Error("job handler failed")
		return
	}
	log.Debug("job handled")
}

// Enqueue blocks while the buffer is full, until ctx is done or the pool
// shuts down.
func (p *Pool) Enqueue(ctx context.Context, jobID string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.senders.Add(1)
	p.mu.Unlock()
	defer p.senders.Done()

	select {
	case p.ch <- jobID:
		return nil
	default:
	}
	p.log.WithField("job_id", jobID).Warn("queue full, applying backpressure")
	select {
	case p.ch <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}
}

// Shutdown stops accepting jobs and waits for queued ones to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	first := !p.closed
	if first {
		p.closed = true
		close(p.done)
	}
	p.mu.Unlock()
	if first {
		p.senders.Wait()
		close(p.ch)
	}

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

var _ ports.Queue = (*Pool)(nil)
