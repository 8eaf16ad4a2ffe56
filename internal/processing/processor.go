// Package processing runs best-effort background jobs (archive uploads, audit
// inserts) on a small bounded worker pool so they never delay a response.
package processing

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Job is one unit of background work. Name shows up in logs only.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Processor consumes Jobs with a fixed number of goroutines.
type Processor struct {
	queue   chan Job
	workers int
	timeout time.Duration
	logger  *log.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// New builds a Processor with queue capacity tied to worker count. timeout
// bounds each job; zero leaves jobs unbounded.
func New(workers int, timeout time.Duration, logger *log.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		// Buffered so producers on the request path never block.
		queue:   make(chan Job, workers*16),
		workers: workers,
		timeout: timeout,
		logger:  logger,
	}
}

// Start launches worker goroutines. They exit once Stop has been called and
// the queue is drained.
func (p *Processor) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit queues a job for async processing. It reports false when the job was
// dropped because the pool is full or stopped.
func (p *Processor) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("processor stopped, dropping job", "job", job.Name)
		return false
	}
	select {
	case p.queue <- job:
		return true
	default:
		p.logger.Warn("processor queue full, dropping job", "job", job.Name)
		return false
	}
}

// Stop refuses new jobs and waits for queued ones to finish or ctx to end.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) worker() {
	defer p.wg.Done()
	for job := range p.queue {
		p.process(job)
	}
}

func (p *Processor) process(job Job) {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("background job panicked", "job", job.Name, "panic", r)
		}
	}()
	if err := job.Run(ctx); err != nil {
		p.logger.Error("background job failed", "job", job.Name, "err", err)
		return
	}
	p.logger.Debug("background job done", "job", job.Name)
}
