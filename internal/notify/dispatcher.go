package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"fieldwatch/internal/observability/metrics"
)

// Pool fans notification sends out to a bounded set of workers. Failures are
// logged and counted, never returned to the producing pipeline, so one slow
// or broken recipient cannot block siblings or roll back alarm state.
type Pool struct {
	channel Channel
	logger  *log.Logger
	timeout time.Duration

	tasks chan Message
	wg    sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	senders sync.WaitGroup
}

// PoolOption configures the pool.
type PoolOption func(*Pool)

// WithSendTimeout bounds each delivery attempt.
func WithSendTimeout(timeout time.Duration) PoolOption {
	return func(p *Pool) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// NewPool constructs and starts a dispatcher pool.
func NewPool(channel Channel, workers, queueSize int, logger *log.Logger, opts ...PoolOption) (*Pool, error) {
	if channel == nil {
		return nil, errors.New("notify pool: nil channel")
	}
	if workers <= 0 {
		return nil, errors.New("notify pool: workers must be positive")
	}
	if queueSize <= 0 {
		return nil, errors.New("notify pool: queue size must be positive")
	}
	if logger == nil {
		logger = log.Default()
	}
	pool := &Pool{
		channel: channel,
		logger:  logger,
		timeout: 10 * time.Second,
		tasks:   make(chan Message, queueSize),
	}
	for _, opt := range opts {
		opt(pool)
	}
	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}
	return pool, nil
}

// Dispatch enqueues a message. It blocks when the queue is full, providing
// backpressure, and drops the message only when ctx is done first. The
// senders group registration under the mutex lets Close wait for producers
// parked on a full queue before it closes the task channel.
func (p *Pool) Dispatch(ctx context.Context, msg Message) {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Printf("notify: dropped message to %s: dispatcher closed", msg.Phone)
		metrics.IncNotifySend(metrics.ResultError)
		return
	}
	p.senders.Add(1)
	p.mu.Unlock()
	defer p.senders.Done()

	select {
	case p.tasks <- msg:
	case <-ctx.Done():
		p.logger.Printf("notify: dropped message to %s: %v", msg.Phone, ctx.Err())
		metrics.IncNotifySend(metrics.ResultError)
	}
}

// Close stops accepting new messages, waits for producers already parked in
// Dispatch to hand off, then drains the queue and waits for in-flight sends
// to finish.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.senders.Wait()
	close(p.tasks)
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for msg := range p.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.channel.Send(ctx, msg)
		cancel()
		if err != nil {
			p.logger.Printf("notify: send to %s (%s) failed: %v", msg.Phone, msg.Recipient, err)
			metrics.IncNotifySend(metrics.ResultError)
			continue
		}
		metrics.IncNotifySend(metrics.ResultSuccess)
	}
}
