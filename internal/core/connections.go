package core

import (
	"context"
	"sort"
	"sync"
)

// Authenticator resolves a credential into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// ConnectionRegistry tracks live connections, the users behind them and the
// rooms each connection joined.
type ConnectionRegistry struct {
	auth   Authenticator
	buffer int

	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[string]map[string]struct{} // connID -> roomIDs
	users map[string]map[string]struct{} // userID -> connIDs
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry(auth Authenticator, buffer int) *ConnectionRegistry {
	return &ConnectionRegistry{
		auth:   auth,
		buffer: buffer,
		conns:  make(map[string]*Conn),
		rooms:  make(map[string]map[string]struct{}),
		users:  make(map[string]map[string]struct{}),
	}
}

// Register authenticates token and records a new connection.
func (r *ConnectionRegistry) Register(ctx context.Context, connID, token string) (*Conn, error) {
	if token == "" || r.auth == nil {
		return nil, ErrUnauthenticated
	}
	ident, err := r.auth.Authenticate(ctx, token)
	if err != nil || ident.UserID == "" {
		return nil, ErrUnauthenticated
	}

	conn := NewConn(connID, ident, r.buffer)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[connID]; exists {
		return nil, errDuplicateConnection
	}
	r.conns[connID] = conn
	r.rooms[connID] = make(map[string]struct{})
	if r.users[ident.UserID] == nil {
		r.users[ident.UserID] = make(map[string]struct{})
	}
	r.users[ident.UserID][connID] = struct{}{}
	return conn, nil
}

// Get returns a registered connection.
func (r *ConnectionRegistry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// remove forgets a connection and returns the rooms it was in.
// Returns nil for unknown connections.
func (r *ConnectionRegistry) remove(connID string) (*Conn, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil, nil
	}
	rooms := make([]string, 0, len(r.rooms[connID]))
	for room := range r.rooms[connID] {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)

	delete(r.conns, connID)
	delete(r.rooms, connID)
	if set := r.users[conn.UserID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, conn.UserID)
		}
	}
	return conn, rooms
}

// markJoined records room membership for a connection.
// Returns false if the connection is no longer registered.
func (r *ConnectionRegistry) markJoined(connID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms, ok := r.rooms[connID]
	if !ok {
		return false
	}
	rooms[roomID] = struct{}{}
	return true
}

func (r *ConnectionRegistry) markLeft(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rooms, ok := r.rooms[connID]; ok {
		delete(rooms, roomID)
	}
}

// RoomsOf lists the rooms a connection joined.
func (r *ConnectionRegistry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.rooms[connID]))
	for room := range r.rooms[connID] {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// IsOnline reports whether the user holds at least one live connection.
func (r *ConnectionRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// OnlineUsers lists every user with a live connection.
func (r *ConnectionRegistry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.users))
	for u := range r.users {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Count returns the number of live connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *ConnectionRegistry) all() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
