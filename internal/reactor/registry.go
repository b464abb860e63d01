package reactor

import "sync"

type slot struct {
	conn       *Connection
	generation uint64
	occupied   bool
}

// Registry owns connections by slot index rather than by pointer identity.
// Handlers receive an opaque Handle validated against the slot's generation
// counter on every operation, so a handle held by a worker goroutine across
// a connection close cannot resolve to a reused or dangling slot.
type Registry struct {
	mu    sync.Mutex
	slots []slot
	free  []int
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add inserts a connection, returning the Handle callers must use to look
// it up again.
func (r *Registry) Add(conn *Connection) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx int
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = len(r.slots)
		r.slots = append(r.slots, slot{})
	}

	gen := r.slots[idx].generation + 1
	r.slots[idx] = slot{conn: conn, generation: gen, occupied: true}
	h := Handle{Index: idx, Generation: gen}
	conn.Handle = h
	conn.generation = gen
	return h
}

// Get resolves a Handle to its Connection, or (nil, false) if the handle
// is stale (the slot has since been reused or freed).
func (r *Registry) Get(h Handle) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.Index < 0 || h.Index >= len(r.slots) {
		return nil, false
	}
	s := r.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return nil, false
	}
	return s.conn, true
}

// Remove evicts the connection at h's slot, bumping its generation so any
// outstanding handle becomes stale. Returns the removed connection, or nil
// if the handle no longer resolves (e.g. double-remove).
func (r *Registry) Remove(h Handle) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.Index < 0 || h.Index >= len(r.slots) {
		return nil
	}
	s := r.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return nil
	}
	r.slots[h.Index] = slot{generation: s.generation}
	r.free = append(r.free, h.Index)
	if s.conn.markDestroyed() {
		return s.conn
	}
	return nil
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots) - len(r.free)
}

// Each calls fn for every live connection. fn must not mutate the registry.
func (r *Registry) Each(fn func(*Connection)) {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.slots))
	for _, s := range r.slots {
		if s.occupied {
			conns = append(conns, s.conn)
		}
	}
	r.mu.Unlock()
	for _, c := range conns {
		fn(c)
	}
}
