package reactor

import (
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestTCPEchoOverReactor grounds spec scenario 1: bind a stream listener
// on 127.0.0.1:0, echo what is read back into the write buffer, and
// confirm a real TCP client round-trips the same bytes repeatedly on the
// same port.
func TestTCPEchoOverReactor(t *testing.T) {
	addr, _ := ParseAddress("127.0.0.1:0")
	ln, err := Listen(addr, SockStream, DefaultBacklog)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	r, err := New(WithPollTimeout(20 * time.Millisecond))
	if err != nil {
		t.Fatalf("new reactor: %v", err)
	}
	defer r.Close()

	connections := map[int]*Socket{}

	if err := r.Register(ln.FD(), InterestReadable, func(fd int, ev ReadyEvent) {
		for {
			sock, _, wouldBlock, err := ln.Accept()
			if wouldBlock || err != nil {
				return
			}
			connections[sock.FD()] = sock
			cfd := sock.FD()
			_ = r.Register(cfd, InterestReadable, func(fd int, ev ReadyEvent) {
				buf := make([]byte, 4096)
				n, wb, err := sock.Read(buf)
				if wb {
					return
				}
				if err != nil || n == 0 {
					_ = r.Unregister(cfd)
					sock.Close()
					delete(connections, cfd)
					return
				}
				_, _, _ = sock.Write(buf[:n])
			})
		}
	}); err != nil {
		t.Fatalf("register listener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(nil, 0)
	}()

	tcpAddr := ln.Addr().String()
	for i := 0; i < 16; i++ {
		conn, err := net.Dial("tcp", tcpAddr)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		if _, err := conn.Write([]byte("Hello, world!")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		buf := make([]byte, 13)
		conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, err := readFull(conn, buf); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if string(buf) != "Hello, world!" {
			t.Fatalf("echo %d: got %q", i, buf)
		}
		conn.Close()
	}

	r.Stop()
	<-done
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestRegistryHandleInvalidationOnReuse(t *testing.T) {
	reg := NewRegistry()
	conn := &Connection{}
	h1 := reg.Add(conn)

	if got := reg.Remove(h1); got != conn {
		t.Fatalf("expected remove to return original connection")
	}
	if _, ok := reg.Get(h1); ok {
		t.Fatalf("stale handle should not resolve after removal")
	}

	conn2 := &Connection{}
	h2 := reg.Add(conn2)
	if h2.Index == h1.Index && h2.Generation == h1.Generation {
		t.Fatalf("reused slot must bump generation")
	}
	if _, ok := reg.Get(h1); ok {
		t.Fatalf("old handle must not resolve to the reused slot")
	}
	if got, ok := reg.Get(h2); !ok || got != conn2 {
		t.Fatalf("new handle should resolve to new connection")
	}
}

func TestParseAddress(t *testing.T) {
	cases := []struct {
		in   string
		fam  Family
		fail bool
	}{
		{"127.0.0.1:8080", FamilyInet, false},
		{"[::1]:8080", FamilyInet6, false},
		{"/tmp/sentinelcore-test.sock", FamilyLocal, false},
		{"not-an-address", FamilyLocal, false},
		{"256.256.256.256:80", 0, true},
	}
	for _, c := range cases {
		addr, err := ParseAddress(c.in)
		if c.fail {
			if err == nil {
				t.Errorf("%q: expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", c.in, err)
			continue
		}
		if addr.Family != c.fam {
			t.Errorf("%q: family = %v, want %v", c.in, addr.Family, c.fam)
		}
	}
}
