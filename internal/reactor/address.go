package reactor

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Family identifies the address family of a socket.
type Family int

const (
	FamilyInet Family = iota
	FamilyInet6
	FamilyLocal
)

func (f Family) String() string {
	switch f {
	case FamilyInet:
		return "inet"
	case FamilyInet6:
		return "inet6"
	case FamilyLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Address is a tagged socket address: inet/inet6 carry an IP and port,
// local carries a filesystem path. Exactly one shape is populated
// depending on Family.
type Address struct {
	Family Family
	IP     net.IP
	Port   int
	Scope  string // inet6 zone id, optional
	Path   string // local family only
}

// IsLocal reports whether the address is a filesystem-path address.
func (a Address) IsLocal() bool {
	return a.Family == FamilyLocal
}

// String formats the address as host:port (inet), [v6%scope]:port (inet6),
// or the raw path (local).
func (a Address) String() string {
	switch a.Family {
	case FamilyLocal:
		return a.Path
	case FamilyInet6:
		host := a.IP.String()
		if a.Scope != "" {
			host = host + "%" + a.Scope
		}
		return net.JoinHostPort(host, strconv.Itoa(a.Port))
	default:
		return net.JoinHostPort(a.IP.String(), strconv.Itoa(a.Port))
	}
}

// ParseAddress parses a bind/connect endpoint. A string beginning with
// "/", "./" or "../", or containing no ":" at all, is treated as a local
// (Unix domain) path. Otherwise it is parsed as host:port, with IPv6
// literals in the conventional "[addr]:port" or "[addr%zone]:port" form.
func ParseAddress(s string) (Address, error) {
	if looksLikePath(s) {
		return Address{Family: FamilyLocal, Path: s}, nil
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: invalid port: %w", s, err)
	}

	host, scope := splitZone(host)
	ip := net.ParseIP(host)
	if ip == nil {
		// Allow empty/wildcard host ("" or "0.0.0.0"/"::") resolution to proceed
		// as the literal; non-literal hostnames are not resolved by this layer.
		if host == "" {
			ip = net.IPv4zero
		} else {
			return Address{}, fmt.Errorf("parse address %q: not an IP literal", s)
		}
	}

	if ip4 := ip.To4(); ip4 != nil && scope == "" {
		return Address{Family: FamilyInet, IP: ip4, Port: port}, nil
	}
	return Address{Family: FamilyInet6, IP: ip, Port: port, Scope: scope}, nil
}

func splitZone(host string) (addr, zone string) {
	if i := strings.IndexByte(host, '%'); i >= 0 {
		return host[:i], host[i+1:]
	}
	return host, ""
}

func looksLikePath(s string) bool {
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") {
		return true
	}
	// host:port always contains a colon after a valid port-bearing suffix;
	// a bare "name.sock" with no colon at all is a local path.
	if !strings.Contains(s, ":") {
		return true
	}
	return false
}
