// Package dispatch runs event handlers on a fixed set of workers. Jobs are
// sharded by key so jobs for one key run in submission order while
// different keys proceed in parallel.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Job is a unit of work. The context is cancelled when the pool stops.
type Job func(ctx context.Context)

const (
	DefaultWorkers   = 8
	DefaultQueueSize = 64
)

// Pool is a sharded worker pool.
type Pool struct {
	queues []chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
	onDrop func(key int64)

	mu      sync.RWMutex
	stopped bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger for dropped jobs and recovered panics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// WithDropHook is called whenever a job is dropped because its shard is full.
func WithDropHook(fn func(key int64)) Option {
	return func(p *Pool) { p.onDrop = fn }
}

// New starts workers goroutines, each with a queue of queueSize jobs.
// Non-positive arguments take the defaults.
func New(workers, queueSize int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queues: make([]chan Job, workers),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	p.logger = p.logger.With("component", "dispatch")

	for i := range p.queues {
		p.queues[i] = make(chan Job, queueSize)
		p.wg.Add(1)
		go p.work(p.queues[i])
	}
	return p
}

// Submit queues job on the shard for key. It never blocks: when the shard
// is full, or the pool has stopped, the job is dropped and false returned.
func (p *Pool) Submit(key int64, job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.queues[p.shard(key)] <- job:
		return true
	default:
		p.logger.Warn("queue full, dropping job", "key", key)
		if p.onDrop != nil {
			p.onDrop(key)
		}
		return false
	}
}

// Stop refuses new jobs, runs everything already queued and waits for the
// workers to exit. Jobs still running when ctx ends see their context
// cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		for _, q := range p.queues {
			close(q)
		}
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) shard(key int64) int {
	k := uint64(key)
	return int(k % uint64(len(p.queues)))
}

func (p *Pool) work(q <-chan Job) {
	defer p.wg.Done()
	for job := range q {
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "panic", fmt.Sprint(r))
		}
	}()
	job(p.ctx)
}
