// Package reactor implements a single-threaded, readiness-driven I/O
// event loop: a platform poll primitive, a socket/listener abstraction
// over stream, datagram, and local (Unix-domain) transports, and a
// per-client connection state machine. All handler callbacks registered
// with a Reactor run exclusively on the goroutine that calls Run.
package reactor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultPollTimeout bounds the blocking time of a single poll tick so
// that stop() and housekeeping (session GC, idle connection sweep) can
// always make progress.
const DefaultPollTimeout = 500 * time.Millisecond

// Handler is invoked on the reactor thread when fd becomes ready per the
// registered interest mask.
type Handler func(fd int, ev ReadyEvent)

type registration struct {
	interest Interest
	handler  Handler
}

// Reactor owns a poll set and a map of registered file descriptors to
// readiness-interest handlers, and pumps events on the calling goroutine.
type Reactor struct {
	log  *slog.Logger
	poll poller

	mu   sync.Mutex
	regs map[int]registration

	pollTimeout time.Duration
	stopping    atomic.Bool

	wakeR, wakeW int
	wakeHandlers []func()
	wakeMu       sync.Mutex
}

// Option configures a Reactor at construction time.
type Option func(*Reactor)

// WithLogger overrides the reactor's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reactor) { r.log = l }
}

// WithPollTimeout overrides the poll-tick bound. Defaults to DefaultPollTimeout.
func WithPollTimeout(d time.Duration) Option {
	return func(r *Reactor) { r.pollTimeout = d }
}

// New creates a Reactor with its platform poll primitive and wake-up pipe
// already established. The reactor does not start pumping events until Run.
func New(opts ...Option) (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}

	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		p.Close()
		return nil, fmt.Errorf("wake-up pipe: %w", err)
	}

	r := &Reactor{
		log:         slog.Default(),
		poll:        p,
		regs:        make(map[int]registration),
		pollTimeout: DefaultPollTimeout,
		wakeR:       fds[0],
		wakeW:       fds[1],
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.poll.Add(r.wakeR, InterestReadable); err != nil {
		r.Close()
		return nil, fmt.Errorf("register wake-up fd: %w", err)
	}
	r.regs[r.wakeR] = registration{interest: InterestReadable, handler: r.drainWake}
	return r, nil
}

// Register associates handler with fd for the given readiness interest.
// Re-registering an already-registered fd replaces the prior interest and
// handler.
func (r *Reactor) Register(fd int, interest Interest, handler Handler) error {
	r.mu.Lock()
	_, existed := r.regs[fd]
	r.regs[fd] = registration{interest: interest, handler: handler}
	r.mu.Unlock()

	if existed {
		return r.poll.Modify(fd, interest)
	}
	return r.poll.Add(fd, interest)
}

// Modify updates fd's interest mask without changing its handler.
func (r *Reactor) Modify(fd int, interest Interest) error {
	r.mu.Lock()
	reg, ok := r.regs[fd]
	if ok {
		reg.interest = interest
		r.regs[fd] = reg
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("modify: fd %d not registered", fd)
	}
	return r.poll.Modify(fd, interest)
}

// Unregister removes fd's handler. No further callbacks fire for it.
func (r *Reactor) Unregister(fd int) error {
	r.mu.Lock()
	delete(r.regs, fd)
	r.mu.Unlock()
	return r.poll.Remove(fd)
}

func (r *Reactor) registeredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}

// OnWake registers a callback invoked on the reactor thread every time the
// wake-up fd is signaled via Wake. Used by the worker pool hand-off: a
// completion queue is drained from this callback, never from a worker
// goroutine.
func (r *Reactor) OnWake(fn func()) {
	r.wakeMu.Lock()
	r.wakeHandlers = append(r.wakeHandlers, fn)
	r.wakeMu.Unlock()
}

// Wake signals the reactor thread from any goroutine. Safe for concurrent
// and cross-thread use.
func (r *Reactor) Wake() {
	var b [1]byte
	_, _ = unix.Write(r.wakeW, b[:])
}

func (r *Reactor) drainWake(fd int, ev ReadyEvent) {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			break
		}
	}
	r.wakeMu.Lock()
	handlers := append([]func(){}, r.wakeHandlers...)
	r.wakeMu.Unlock()
	for _, h := range handlers {
		h()
	}
}

// Stop sets the shutdown flag and wakes the loop. Safe to call from any
// goroutine. Run then returns after the first poll tick at which the
// registered set is down to the wake-up fd or its drainDeadline has
// passed.
func (r *Reactor) Stop() {
	r.stopping.Store(true)
	r.Wake()
}

// Stopping reports whether Stop has been called.
func (r *Reactor) Stopping() bool {
	return r.stopping.Load()
}

// HousekeepingFunc is invoked once per poll tick regardless of readiness,
// bounded by the poll timeout, so that session GC and idle sweeps make
// steady progress even on an idle reactor.
type HousekeepingFunc func()

// Run blocks, repeatedly polling with a bounded timeout and invoking the
// handler registered for each ready descriptor. It returns once Stop has
// been observed and drainDeadline (measured from the Stop call) has
// elapsed or the registered set has shrunk to just the wake-up fd.
func (r *Reactor) Run(housekeeping HousekeepingFunc, drainDeadline time.Duration) error {
	var stoppedAt time.Time
	timeoutMS := int(r.pollTimeout / time.Millisecond)
	if timeoutMS <= 0 {
		timeoutMS = 1
	}

	for {
		events, err := r.poll.Wait(timeoutMS)
		if err != nil {
			return fmt.Errorf("reactor: fatal poll error: %w", err)
		}

		for _, ev := range events {
			r.mu.Lock()
			reg, ok := r.regs[ev.FD]
			r.mu.Unlock()
			if !ok {
				continue
			}
			r.dispatch(ev.FD, reg, ev)
		}

		if housekeeping != nil {
			housekeeping()
		}

		if r.stopping.Load() {
			if stoppedAt.IsZero() {
				stoppedAt = time.Now()
			}
			if r.registeredCount() <= 1 || time.Since(stoppedAt) > drainDeadline {
				return nil
			}
		}
	}
}

// dispatch invokes a handler, logging and closing on panic recovery so a
// single misbehaving handler cannot take down the reactor.
func (r *Reactor) dispatch(fd int, reg registration, ev ReadyEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("reactor: handler panic", "fd", fd, "panic", rec)
			_ = r.Unregister(fd)
		}
	}()
	reg.handler(fd, ev)
}

// Close releases the poller and wake-up pipe. Run must not be called again
// afterward.
func (r *Reactor) Close() error {
	var errs []error
	if err := r.poll.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := unix.Close(r.wakeR); err != nil {
		errs = append(errs, err)
	}
	if err := unix.Close(r.wakeW); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
