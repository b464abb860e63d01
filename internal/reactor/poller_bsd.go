//go:build darwin || freebsd || netbsd || openbsd

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the Darwin/BSD poll backend using kqueue, registered
// level-triggered: one event per iteration per fd is acceptable for
// EVFILT_READ/EVFILT_WRITE in this mode.
type kqueuePoller struct {
	kq      int
	changes []unix.Kevent_t
	events  []unix.Kevent_t
}

func newPoller() (poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	return &kqueuePoller{kq: kq, events: make([]unix.Kevent_t, 256)}, nil
}

func (p *kqueuePoller) apply(fd int, filter int16, flags uint16) error {
	ev := unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) Add(fd int, interest Interest) error {
	if interest&InterestReadable != 0 {
		if err := p.apply(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE); err != nil {
			return err
		}
	}
	if interest&InterestWritable != 0 {
		if err := p.apply(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE); err != nil {
			return err
		}
	}
	return nil
}

func (p *kqueuePoller) Modify(fd int, interest Interest) error {
	// Disable both filters then re-enable the requested set; kqueue has
	// no single-call "replace interest" primitive.
	_ = p.apply(fd, unix.EVFILT_READ, unix.EV_DISABLE)
	_ = p.apply(fd, unix.EVFILT_WRITE, unix.EV_DISABLE)
	return p.Add(fd, interest)
}

func (p *kqueuePoller) Remove(fd int) error {
	_ = p.apply(fd, unix.EVFILT_READ, unix.EV_DELETE)
	_ = p.apply(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	return nil
}

func (p *kqueuePoller) Wait(timeoutMS int) ([]ReadyEvent, error) {
	ts := unix.NsecToTimespec(int64(timeoutMS) * 1_000_000)
	n, err := unix.Kevent(p.kq, nil, p.events, &ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("kevent: %w", err)
	}
	byFD := make(map[int]*ReadyEvent, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		fd := int(e.Ident)
		re, ok := byFD[fd]
		if !ok {
			re = &ReadyEvent{FD: fd}
			byFD[fd] = re
			order = append(order, fd)
		}
		switch e.Filter {
		case unix.EVFILT_READ:
			re.Readable = true
		case unix.EVFILT_WRITE:
			re.Writable = true
		}
	}
	out := make([]ReadyEvent, 0, len(order))
	for _, fd := range order {
		out = append(out, *byFD[fd])
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
