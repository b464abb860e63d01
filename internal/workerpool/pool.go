// Package workerpool offloads handler execution that would otherwise
// block the single reactor thread, per the core specification's optional
// worker pool: a fixed-size goroutine pool paired with an MPSC completion
// queue, handed back to the reactor thread via its wake-up fd so that
// every connection write still happens on that one thread.
package workerpool

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

type task struct {
	work     func() *httpserver.Response
	complete func(*httpserver.Response)
}

type completion struct {
	resp     *httpserver.Response
	complete func(*httpserver.Response)
}

// Pool is a fixed-size worker pool. Workers never touch a connection
// directly: they compute a Response and hand it, plus its completion
// callback, to the completion queue. Only Drain, called from the
// reactor's wake-up handler, invokes completion callbacks -- this is the
// single-writer discipline the spec requires for connection buffers.
type Pool struct {
	tasks       chan task
	completions chan completion
	wake        atomic.Pointer[func()]
	log         *slog.Logger

	wg       sync.WaitGroup
	draining atomic.Bool
	rejected atomic.Int64
}

// Config sizes the pool and its backlog.
type Config struct {
	Workers    int
	QueueDepth int
	Wake       func() // typically (*reactor.Reactor).Wake
	Logger     *slog.Logger
}

// New starts Workers goroutines pulling from a QueueDepth-bounded task
// queue.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Pool{
		tasks:       make(chan task, cfg.QueueDepth),
		completions: make(chan completion, cfg.QueueDepth),
		log:         cfg.Logger,
	}
	if cfg.Wake != nil {
		p.wake.Store(&cfg.Wake)
	}
	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.workerLoop()
	}
	return p
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for t := range p.tasks {
		resp := p.runSafely(t.work)
		p.completions <- completion{resp: resp, complete: t.complete}
		if wake := p.wake.Load(); wake != nil {
			(*wake)()
		}
	}
}

func (p *Pool) runSafely(work func() *httpserver.Response) (resp *httpserver.Response) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("workerpool: task panic", "panic", r)
			resp = httpserver.NewResponse(500, []byte("internal server error"))
		}
	}()
	return work()
}

// Submit enqueues work for async execution. It returns false, without
// queuing anything, when the pool is draining or the backlog is full --
// callers must fall back to a synchronous 503 response in that case.
func (p *Pool) Submit(work func() *httpserver.Response, complete func(*httpserver.Response)) bool {
	if p.draining.Load() {
		return false
	}
	select {
	case p.tasks <- task{work: work, complete: complete}:
		return true
	default:
		p.rejected.Add(1)
		return false
	}
}

// Drain invokes every queued completion callback. Must be called only
// from the reactor thread (e.g. via Reactor.OnWake), never from a worker
// goroutine.
func (p *Pool) Drain() {
	for {
		select {
		case c := <-p.completions:
			c.complete(c.resp)
		default:
			return
		}
	}
}

// Rejected reports how many Submit calls were dropped due to backlog
// pressure, for metrics/admin introspection.
func (p *Pool) Rejected() int64 { return p.rejected.Load() }

// SetWaker installs the reactor wake-up callback after construction. The
// reactor does not exist until Server.Serve binds a listener, so the pool
// is built first with Wake left nil and wired up once Serve creates its
// reactor; httpserver.Server does this automatically for a Submitter that
// implements this optional interface.
func (p *Pool) SetWaker(fn func()) {
	p.wake.Store(&fn)
}

// Shutdown stops accepting new work and waits for in-flight tasks to
// finish, running their completion callbacks on the calling goroutine
// while it waits (so a full completion queue cannot stall a worker), then
// performs one final Drain so no completion is lost.
func (p *Pool) Shutdown() {
	p.draining.Store(true)
	close(p.tasks)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	for {
		select {
		case c := <-p.completions:
			c.complete(c.resp)
		case <-done:
			close(p.completions)
			for c := range p.completions {
				c.complete(c.resp)
			}
			return
		}
	}
}
