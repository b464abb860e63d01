package reactor

// SockType distinguishes stream (TCP/Unix-stream) from datagram (UDP/Unix-dgram) sockets.
type SockType int

const (
	SockStream SockType = iota
	SockDatagram
)

// Params is the {family, type, protocol} triple used to create a raw socket.
type Params struct {
	Family Family
	Type   SockType
}

// ParamsFor derives socket parameters from a parsed Address and the desired type.
func ParamsFor(addr Address, t SockType) Params {
	return Params{Family: addr.Family, Type: t}
}
