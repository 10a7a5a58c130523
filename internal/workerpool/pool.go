package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrPoolClosed is returned when submitting to a drained pool.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrQueueFull is returned by TrySubmit when the queue has no free slot.
	ErrQueueFull = errors.New("worker pool queue full")
)

// Result is what a worker reports back for one job.
type Result[R any] struct {
	Value R
	Err   error
}

// job is the unit of work dispatched to a worker. ctx is the submitter's
// context for jobs queued with Submit and nil for TrySubmit.
type job[T, R any] struct {
	ctx     context.Context
	payload T
	result  chan Result[R]
}

// Pool is a fixed-size goroutine pool with a bounded input queue.
type Pool[T, R any] struct {
	queue    chan job[T, R]
	process  func(ctx context.Context, t T) (R, error)
	ctx      context.Context
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	inFlight atomic.Int64
}

// New creates and starts a pool with n goroutines and queue capacity depth.
func New[T, R any](ctx context.Context, n, depth int, fn func(context.Context, T) (R, error)) *Pool[T, R] {
	if n < 1 {
		n = 1
	}
	if depth < 0 {
		depth = 0
	}
	p := &Pool[T, R]{
		queue:   make(chan job[T, R], depth),
		process: fn,
		ctx:     ctx,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run()
		}()
	}
	return p
}

func (p *Pool[T, R]) run() {
	for {
		select {
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			// The submitter gave up while the job was queued.
			if j.ctx != nil && j.ctx.Err() != nil {
				p.inFlight.Add(-1)
				j.result <- Result[R]{Err: j.ctx.Err()}
				continue
			}
			v, err := p.process(p.ctx, j.payload)
			p.inFlight.Add(-1)
			// result is buffered; the submitter may have stopped waiting.
			j.result <- Result[R]{Value: v, Err: err}
		case <-p.ctx.Done():
			return
		}
	}
}

// TrySubmit enqueues a job without blocking.
func (p *Pool[T, R]) TrySubmit(t T) (<-chan Result[R], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	j := job[T, R]{payload: t, result: make(chan Result[R], 1)}
	p.inFlight.Add(1)
	select {
	case p.queue <- j:
		return j.result, nil
	default:
		p.inFlight.Add(-1)
		return nil, ErrQueueFull
	}
}

// Submit enqueues a job, waiting for a free queue slot when the pool is saturated.
// A job whose ctx is done by the time a worker picks it up is not processed;
// its result carries ctx.Err().
func (p *Pool[T, R]) Submit(ctx context.Context, t T) (<-chan Result[R], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	j := job[T, R]{ctx: ctx, payload: t, result: make(chan Result[R], 1)}
	p.inFlight.Add(1)
	select {
	case p.queue <- j:
		return j.result, nil
	case <-ctx.Done():
		p.inFlight.Add(-1)
		return nil, ctx.Err()
	case <-p.ctx.Done():
		p.inFlight.Add(-1)
		return nil, ErrPoolClosed
	}
}

// Drain closes the queue and waits for all workers to finish queued jobs.
func (p *Pool[T, R]) Drain() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

// InFlight returns the number of jobs queued or running.
func (p *Pool[T, R]) InFlight() int64 {
	return p.inFlight.Load()
}

// QueueLen returns how many jobs are currently queued.
func (p *Pool[T, R]) QueueLen() int {
	return len(p.queue)
}

// QueueCap returns the total queue capacity.
func (p *Pool[T, R]) QueueCap() int {
	return cap(p.queue)
}
