package reactor

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultBacklog is the default stream/local listen backlog.
const DefaultBacklog = 10

// Listener is the capability set the reactor drives uniformly across
// stream, datagram, and local transports: accept (stream/local) or
// readfrom/writeto (datagram).
type Listener struct {
	Socket
	addr Address
}

// Addr returns the bound address.
func (l *Listener) Addr() Address {
	return l.addr
}

// Listen creates, binds, and (for stream/local) listens on addr.
// Datagram listeners skip the listen(2) call. Non-blocking mode is
// asserted unconditionally: failing to do so for a reactor-managed
// descriptor, including datagram listeners, is a bug.
func Listen(addr Address, t SockType, backlog int) (*Listener, error) {
	if addr.IsLocal() {
		// Stale socket files are unlinked before bind, per the local-family
		// contract; cleanup after close remains the caller's responsibility.
		if err := unlinkStale(addr.Path); err != nil {
			return nil, err
		}
	}

	fd, err := newRawSocket(ParamsFor(addr, t))
	if err != nil {
		return nil, err
	}

	sa, err := sockaddrFor(addr)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}

	if t == SockStream {
		if backlog <= 0 {
			backlog = DefaultBacklog
		}
		if err := unix.Listen(fd, backlog); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
	}

	if err := setNonblocking(fd); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set non-blocking on listener %s: %w", addr, err)
	}

	boundAddr := addr
	if boundAddr.Port == 0 && !addr.IsLocal() {
		if real, err := getsockname(fd, addr.Family); err == nil {
			boundAddr = real
		}
	}

	local := ""
	if addr.IsLocal() {
		local = addr.Path
	}
	return &Listener{Socket: Socket{fd: fd, params: ParamsFor(addr, t), local: local}, addr: boundAddr}, nil
}

func getsockname(fd int, family Family) (Address, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return Address{}, err
	}
	return addressFromSockaddr(sa), nil
}

func unlinkStale(path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("unlink stale socket %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Accept performs a one-shot, non-blocking accept on a stream/local
// listener. Returns (nil, Address{}, true, nil) on would-block.
func (l *Listener) Accept() (*Socket, Address, bool, error) {
	nfd, sa, err := unix.Accept(l.fd)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil, Address{}, true, nil
		}
		return nil, Address{}, false, fmt.Errorf("accept: %w", err)
	}
	if err := setNonblocking(nfd); err != nil {
		unix.Close(nfd)
		return nil, Address{}, false, fmt.Errorf("set non-blocking on accepted socket: %w", err)
	}
	if l.params.Family != FamilyLocal {
		tuneStreamSocket(nfd)
	}
	peer := addressFromSockaddr(sa)
	return &Socket{fd: nfd, params: Params{Family: l.params.Family, Type: SockStream}}, peer, false, nil
}
