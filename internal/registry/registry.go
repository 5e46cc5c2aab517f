package registry

import "sync"

// Role is a client's declared category, governing broadcast eligibility.
type Role string

const (
	RoleUnknown    Role = "unknown"
	RoleViewer     Role = "viewer"
	RoleMonitor    Role = "monitor"
	RoleSender     Role = "sender"
	RoleRestaurant Role = "restaurant"
)

// ParseRole maps a declared clientType to a Role. Unrecognized values report
// ok=false and leave the connection's role untouched.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleViewer, RoleMonitor, RoleSender, RoleRestaurant:
		return Role(s), true
	}
	return RoleUnknown, false
}

// Conn is the send-side surface of a downstream connection. The hub's client
// type implements it; tests substitute fakes.
type Conn interface {
	// ID returns the opaque connection identifier.
	ID() string

	// TrySend queues data for delivery without blocking. It fails
	// immediately if the peer's buffer is full or the connection is closed.
	TrySend(data []byte) error

	// Writable reports whether the transport can currently accept writes.
	Writable() bool
}

// Registry maps live connections to role metadata. All methods are safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*entry
}

type entry struct {
	conn Conn
	role Role
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{conns: make(map[string]*entry)}
}

// Register adds a connection with role unknown. Re-registering the same ID
// replaces the previous entry.
func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	r.conns[c.ID()] = &entry{conn: c, role: RoleUnknown}
	r.mu.Unlock()
}

// SetRole declares the role for a registered connection. Setting the same
// role twice is idempotent; unknown IDs are a no-op.
func (r *Registry) SetRole(id string, role Role) {
	r.mu.Lock()
	if e, ok := r.conns[id]; ok {
		e.role = role
	}
	r.mu.Unlock()
}

// Role returns the declared role for id, or RoleUnknown if the connection is
// not registered.
func (r *Registry) Role(id string) Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.role
	}
	return RoleUnknown
}

// Get returns the connection registered under id.
func (r *Registry) Get(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.conn, true
	}
	return nil, false
}

// Unregister removes a connection. Removing an absent ID is a no-op, so
// teardown paths may call it more than once.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ForEach invokes fn for every writable connection whose role satisfies pred.
// The snapshot is taken under the lock; fn runs outside it, so a slow peer
// never blocks unrelated registry access.
func (r *Registry) ForEach(pred func(Role) bool, fn func(Conn)) {
	r.mu.RLock()
	matched := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		if pred(e.role) && e.conn.Writable() {
			matched = append(matched, e.conn)
		}
	}
	r.mu.RUnlock()

	for _, c := range matched {
		fn(c)
	}
}

// RoleIn returns a predicate matching any of the given roles.
func RoleIn(roles ...Role) func(Role) bool {
	return func(r Role) bool {
		for _, want := range roles {
			if r == want {
				return true
			}
		}
		return false
	}
}

// Any matches every role, including unknown.
func Any(Role) bool { return true }
