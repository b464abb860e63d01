package reactor

import "sync/atomic"

// State is a single flag in a Connection's StateSet. Several orthogonal
// flags may be held simultaneously (e.g. Reading+Processing during
// pipelined keep-alive).
type State uint32

const (
	StateIdle State = 1 << iota
	StateReadable
	StateReading
	StateProcessing
	StateProcessingAsync
	StateResponding
	StateSendingHeaders
	StateSendingBody
	StateClosing
	StateClosed
)

// StateNames maps each state name to its State flag, for introspection/metrics
// code that reports a histogram over live connections.
var StateNames = map[string]State{
	"idle":             StateIdle,
	"readable":         StateReadable,
	"reading":          StateReading,
	"processing":       StateProcessing,
	"processing_async": StateProcessingAsync,
	"responding":       StateResponding,
	"sending_headers":  StateSendingHeaders,
	"sending_body":     StateSendingBody,
	"closing":          StateClosing,
	"closed":           StateClosed,
}

// StateSet is a bitset multiset over State tokens.
type StateSet uint32

func (s StateSet) Has(flag State) bool     { return s&StateSet(flag) != 0 }
func (s StateSet) With(flag State) StateSet    { return s | StateSet(flag) }
func (s StateSet) Without(flag State) StateSet { return s &^ StateSet(flag) }

// Handle is an opaque, generation-checked reference to a connection slot.
// Worker threads carry a Handle rather than a *Connection pointer so a
// connection closed mid-flight cannot be dereferenced: every operation
// re-validates the handle against the slot's current generation.
type Handle struct {
	Index      int
	Generation uint64
}

// Connection is the per-client state the reactor owns once a socket is
// registered. Only the reactor thread ever reads or writes the socket;
// capability objects handed to handlers only expose Send/RequestClose.
type Connection struct {
	Handle Handle

	socket *Socket
	peer   Address

	ReadBuf  []byte
	WriteBuf []byte

	state StateSet

	// KeepAlive controls whether SendingBody transitions back to Idle
	// (true) or to Closing (false) once the write buffer drains.
	KeepAlive bool

	// Proto holds protocol-private state (parser cursor, in-flight
	// HttpRequest, SSE stream context); opaque to the reactor.
	Proto any

	generation uint64
	destroyed  atomic.Bool
}

// NewConnection wraps an accepted socket for reactor ownership.
func NewConnection(handle Handle, sock *Socket, peer Address) *Connection {
	return &Connection{
		Handle:    handle,
		socket:    sock,
		peer:      peer,
		state:     StateSet(StateIdle),
		KeepAlive: true,
	}
}

// Peer returns the immutable peer address.
func (c *Connection) Peer() Address { return c.peer }

// Socket returns the underlying socket. Reactor-thread use only.
func (c *Connection) Socket() *Socket { return c.socket }

// State returns the current StateSet.
func (c *Connection) State() StateSet { return c.state }

// SetState replaces the StateSet.
func (c *Connection) SetState(s StateSet) { c.state = s }

// Destroyed reports whether the connection has already been torn down.
// Destruction happens exactly once, after Closing is observed and the
// write buffer is drained or abandoned per policy.
func (c *Connection) Destroyed() bool { return c.destroyed.Load() }

func (c *Connection) markDestroyed() bool { return c.destroyed.CompareAndSwap(false, true) }
