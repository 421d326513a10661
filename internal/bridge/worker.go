// ABOUTME: Per-conversation serialized work queues for event processing.
// ABOUTME: Guarantees events for one conversation are handled in arrival order.

package bridge

import (
	"log/slog"
	"sync"
)

// taskQueueSize bounds each conversation's pending task queue. A full queue
// drops the newest task rather than blocking the dispatcher.
const taskQueueSize = 64

// workerPool runs one goroutine per active conversation so that all
// processing for a given messenger conversation id happens sequentially,
// including blocking member-info lookups. Two events for the same
// conversation can therefore never have their effects interleave or land out
// of arrival order, regardless of how fast their lookups resolve.
type workerPool struct {
	mu      sync.Mutex
	workers map[string]chan func()
	wg      sync.WaitGroup
	closed  bool
	logger  *slog.Logger
}

func newWorkerPool(logger *slog.Logger) *workerPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &workerPool{
		workers: make(map[string]chan func()),
		logger:  logger.With("component", "worker-pool"),
	}
}

// Dispatch enqueues a task on the conversation's queue, creating the worker
// lazily on first use. Tasks for the same key run one at a time, in order.
func (p *workerPool) Dispatch(key string, task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Debug("task dropped, pool closed", "conversation", key)
		return
	}

	tasks, ok := p.workers[key]
	if !ok {
		tasks = make(chan func(), taskQueueSize)
		p.workers[key] = tasks
		p.wg.Add(1)
		go p.run(tasks)
	}

	// Enqueue while still holding the lock so Close cannot close the channel
	// between the lookup and the send. The send never blocks.
	select {
	case tasks <- task:
	default:
		p.logger.Warn("task queue full, dropping event", "conversation", key)
	}
	p.mu.Unlock()
}

func (p *workerPool) run(tasks chan func()) {
	defer p.wg.Done()
	for task := range tasks {
		task()
	}
}

// Close stops accepting tasks, lets queued tasks finish, and waits for all
// workers to exit. Safe to call once during shutdown.
func (p *workerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, tasks := range p.workers {
		close(tasks)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
