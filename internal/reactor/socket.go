package reactor

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by operations on a socket that has already been closed.
var ErrClosed = errors.New("reactor: socket closed")

// Socket owns a kernel descriptor for its lifetime. Close is idempotent:
// calling it more than once is a no-op after the first call.
type Socket struct {
	fd     int
	closed bool
	params Params
	local  string // unlink target for local-family sockets, empty otherwise
}

// FD returns the underlying descriptor. Valid until Close.
func (s *Socket) FD() int {
	return s.fd
}

// Closed reports whether Close has already run.
func (s *Socket) Closed() bool {
	return s.closed
}

// newRawSocket creates a non-blocking socket for the given parameters.
func newRawSocket(p Params) (int, error) {
	domain := unix.AF_INET
	switch p.Family {
	case FamilyInet6:
		domain = unix.AF_INET6
	case FamilyLocal:
		domain = unix.AF_UNIX
	}

	typ := unix.SOCK_STREAM
	if p.Type == SockDatagram {
		typ = unix.SOCK_DGRAM
	}

	fd, err := unix.Socket(domain, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if p.Family != FamilyLocal && p.Type == SockStream {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}
	return fd, nil
}

func sockaddrFor(addr Address) (unix.Sockaddr, error) {
	switch addr.Family {
	case FamilyInet:
		sa := &unix.SockaddrInet4{Port: addr.Port}
		ip4 := addr.IP.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("address %s is not IPv4", addr)
		}
		copy(sa.Addr[:], ip4)
		return sa, nil
	case FamilyInet6:
		sa := &unix.SockaddrInet6{Port: addr.Port}
		ip16 := addr.IP.To16()
		if ip16 == nil {
			return nil, fmt.Errorf("address %s is not IPv6", addr)
		}
		copy(sa.Addr[:], ip16)
		return sa, nil
	case FamilyLocal:
		return &unix.SockaddrUnix{Name: addr.Path}, nil
	default:
		return nil, fmt.Errorf("unknown address family %v", addr.Family)
	}
}

func addressFromSockaddr(sa unix.Sockaddr) Address {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return Address{Family: FamilyInet, IP: net.IP(v.Addr[:]).To4(), Port: v.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, v.Addr[:])
		return Address{Family: FamilyInet6, IP: ip, Port: v.Port}
	case *unix.SockaddrUnix:
		return Address{Family: FamilyLocal, Path: v.Name}
	default:
		return Address{}
	}
}

// setNonblocking asserts O_NONBLOCK on fd. The reactor treats failing to do
// this as a bug: every descriptor it manages, including datagram listeners,
// must be non-blocking before registration.
func setNonblocking(fd int) error {
	return unix.SetNonblock(fd, true)
}

// tuneStreamSocket applies TCP_NODELAY and SO_KEEPALIVE to an accepted
// stream connection.
func tuneStreamSocket(fd int) {
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
}

// Close releases the descriptor. Idempotent; after Close the fd is no
// longer valid and must not be registered in any reactor.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := unix.Close(s.fd)
	if s.local != "" {
		_ = unix.Unlink(s.local)
	}
	return err
}

// Read performs a one-shot, non-blocking recv. Returns (0, true, nil) on
// would-block, (n, false, nil) on partial/complete success, or a hard error.
func (s *Socket) Read(buf []byte) (n int, wouldBlock bool, err error) {
	n, err = unix.Read(s.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, true, nil
		}
		return 0, false, err
	}
	return n, false, nil
}

// Write performs a one-shot, non-blocking send.
func (s *Socket) Write(buf []byte) (n int, wouldBlock bool, err error) {
	n, err = unix.Write(s.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, true, nil
		}
		return 0, false, err
	}
	return n, false, nil
}

// RecvFrom performs a one-shot, non-blocking recvfrom for datagram sockets.
func (s *Socket) RecvFrom(buf []byte) (n int, peer Address, wouldBlock bool, err error) {
	n, sa, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, Address{}, true, nil
		}
		return 0, Address{}, false, err
	}
	if sa == nil {
		return n, Address{}, false, nil
	}
	return n, addressFromSockaddr(sa), false, nil
}

// SendTo performs a one-shot, non-blocking sendto for datagram sockets.
func (s *Socket) SendTo(buf []byte, peer Address) (wouldBlock bool, err error) {
	sa, err := sockaddrFor(peer)
	if err != nil {
		return false, err
	}
	if err := unix.Sendto(s.fd, buf, 0, sa); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}
