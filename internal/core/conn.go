package core

import (
	"sync"
	"time"
)

// CloseReason explains why the hub dropped a connection.
type CloseReason int

const (
	// CloseNone means the connection is still open.
	CloseNone CloseReason = iota
	// CloseSlowConsumer means the connection fell behind and must resync from history.
	CloseSlowConsumer
	// CloseShutdown means the server is stopping.
	CloseShutdown
	// CloseUnregistered means the connection was removed from the hub.
	CloseUnregistered
)

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserID string
	Name   string
}

// Conn is one authenticated transport session of a user.
// A user may hold several at once (tabs, devices).
type Conn struct {
	ID          string
	UserID      string
	Name        string
	ConnectedAt time.Time

	events    chan *Event
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	reason CloseReason
}

// NewConn builds a connection with a buffered outbound queue.
func NewConn(id string, ident Identity, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 64
	}
	return &Conn{
		ID:          id,
		UserID:      ident.UserID,
		Name:        ident.Name,
		ConnectedAt: time.Now(),
		events:      make(chan *Event, buffer),
		done:        make(chan struct{}),
	}
}

// Events is the outbound queue the transport drains.
func (c *Conn) Events() <-chan *Event {
	return c.events
}

// Done is closed when the hub drops the connection.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Reason reports why Done was closed.
func (c *Conn) Reason() CloseReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Deliver enqueues an event without blocking. A full queue drops the
// connection instead of the event so the client never sees a silent gap.
func (c *Conn) Deliver(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.events <- ev:
		return true
	default:
		c.Close(CloseSlowConsumer)
		return false
	}
}

// Close marks the connection as dropped. Only the first reason is kept.
func (c *Conn) Close(reason CloseReason) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}
