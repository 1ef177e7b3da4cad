package pool

import (
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/bit2swaz/cache-janitor/internal/logging"
)

var ErrClosed = errors.New("pool is shut down")

// Pool runs submitted tasks on a bounded set of goroutines with an unbounded
// FIFO queue. Core workers live until Shutdown; when every worker is busy,
// extra workers are started up to maxWorkers and exit as soon as the queue is empty.
type Pool struct {
	core       int
	maxWorkers int
	logger     *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	workers int
	idle    int
	closed  bool
	wg      sync.WaitGroup
}

// New starts core workers immediately. maxWorkers is raised to core if
// smaller.
func New(core, maxWorkers int, logger *slog.Logger) *Pool {
	if core < 1 {
		core = 1
	}
	if maxWorkers < core {
		maxWorkers = core
	}
	if logger == nil {
		logger = logging.Discard()
	}

	p := &Pool{core: core, maxWorkers: maxWorkers, logger: logger}
	p.cond = sync.NewCond(&p.mu)

	p.mu.Lock()
	for i := 0; i < core; i++ {
		p.spawnLocked(true)
	}
	p.mu.Unlock()

	return p
}

// Submit queues task and returns without waiting for it to run.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.queue = append(p.queue, task)
	switch {
	case p.idle > 0:
		p.idle--
		p.cond.Signal()
	case p.workers < p.maxWorkers:
		p.spawnLocked(false)
	}
	return nil
}

// Shutdown stops accepting tasks, lets the workers drain everything already
// queued and waits for them to exit. Calling it twice is harmless.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.idle = 0
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats reports the current worker count and queue length.
func (p *Pool) Stats() (workers, queued int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers, len(p.queue)
}

func (p *Pool) spawnLocked(core bool) {
	p.workers++
	p.wg.Add(1)
	go p.work(core)
}

func (p *Pool) work(core bool) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			if !core {
				p.workers--
				p.mu.Unlock()
				return
			}
			p.idle++
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.workers--
			p.mu.Unlock()
			return
		}

		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
