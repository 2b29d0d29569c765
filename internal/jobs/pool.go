package jobs

import (
	"context"
	"sync"
	"time"

	"clipd/internal/logger"
)

// JobSource is the slice of the store the pool polls for work.
type JobSource interface {
	ClaimQueued() (*Job, error)
}

// pollInterval is how often an idle worker checks for queued jobs.
const pollInterval = 2 * time.Second

// WorkerPool runs N workers that claim queued jobs and drive them through
// the Runner. Each running job gets its own cancelable context so a
// cancellation request can interrupt in-flight tool calls.
type WorkerPool struct {
	runner *Runner
	source JobSource
	size   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // job ID → cancel
}

// NewWorkerPool builds a pool of size workers; Start launches them.
func NewWorkerPool(runner *Runner, source JobSource, size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		runner:  runner,
		source:  source,
		size:    size,
		ctx:     ctx,
		cancel:  cancel,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	logger.Info("worker pool started", "workers", p.size)
}

// Stop cancels all running jobs' contexts and waits for workers to exit.
// Interrupted jobs stay running in the store and are re-queued on the
// next startup.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	logger.Info("worker pool stopped")
}

// CancelJob interrupts a running job's in-flight tool call, best-effort.
// The store's cancel flag is what actually guarantees the canceled state;
// this just speeds it up.
func (p *WorkerPool) CancelJob(id string) {
	p.mu.Lock()
	cancel, ok := p.cancels[id]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

func (p *WorkerPool) work(id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := p.source.ClaimQueued()
		if err != nil {
			logger.Error("claim queued job failed", "worker", id, "error", err)
		} else if job != nil {
			p.runJob(id, job)
			continue // look for more work immediately
		}

		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *WorkerPool) runJob(workerID int, job *Job) {
	ctx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	p.mu.Lock()
	p.cancels[job.ID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.cancels, job.ID)
		p.mu.Unlock()
	}()

	logger.Info("job started", "worker", workerID, "job", job.ID)
	p.runner.Run(ctx, job)
}
