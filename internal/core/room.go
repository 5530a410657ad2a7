package core

import (
	"sort"
	"sync"
)

// room is the in-memory state of one active room.
//
// Lock order: sendMu before mu. sendMu serializes message commits and the
// history snapshot taken on join, so a joiner never misses a message between
// its snapshot and its first live event. mu guards membership and every
// broadcast that must stay ordered with membership changes.
type room struct {
	id   string
	kind RoomKind

	sendMu sync.Mutex

	mu      sync.RWMutex
	members map[string]map[string]*Conn // userID -> connID -> conn

	refs int // guarded by RoomRegistry.mu
}

func newRoom(id string, kind RoomKind) *room {
	return &room{
		id:      id,
		kind:    kind,
		members: make(map[string]map[string]*Conn),
	}
}

// add inserts a connection. Returns true if the user was not present before.
func (r *room) add(c *Conn) bool {
	conns, present := r.members[c.UserID]
	if !present {
		conns = make(map[string]*Conn)
		r.members[c.UserID] = conns
	}
	conns[c.ID] = c
	return !present
}

// remove deletes a connection. userGone is true when it was the user's last
// connection in the room.
func (r *room) remove(userID, connID string) (removed, userGone bool) {
	conns, ok := r.members[userID]
	if !ok {
		return false, false
	}
	if _, ok := conns[connID]; !ok {
		return false, false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.members, userID)
		return true, true
	}
	return true, false
}

func (r *room) hasUser(userID string) bool {
	return len(r.members[userID]) > 0
}

func (r *room) hasConn(userID, connID string) bool {
	_, ok := r.members[userID][connID]
	return ok
}

func (r *room) participants() []string {
	users := make([]string, 0, len(r.members))
	for u := range r.members {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

func (r *room) empty() bool {
	return len(r.members) == 0
}

// broadcast delivers ev to every connection except those of skipUser.
func (r *room) broadcast(ev *Event, skipUser string) {
	for userID, conns := range r.members {
		if userID == skipUser {
			continue
		}
		for _, c := range conns {
			c.Deliver(ev)
		}
	}
}

// RoomRegistry owns the active rooms. Rooms are created on first join and
// evicted by the sweeper once empty and unreferenced.
type RoomRegistry struct {
	mu    sync.Mutex
	rooms map[string]*room
	// purging holds tombstones of evicted rooms whose storage is being
	// cleared; the channel closes when the purge ends.
	purging map[string]chan struct{}
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:   make(map[string]*room),
		purging: make(map[string]chan struct{}),
	}
}

// acquire returns the room, creating it when create is set. Creating a room
// that is still being purged waits for the purge to end. The caller must
// release a non-nil result.
func (rr *RoomRegistry) acquire(id string, kind RoomKind, create bool) *room {
	for {
		rr.mu.Lock()
		r, ok := rr.rooms[id]
		if !ok {
			if !create {
				rr.mu.Unlock()
				return nil
			}
			if done, busy := rr.purging[id]; busy {
				rr.mu.Unlock()
				<-done
				continue
			}
			r = newRoom(id, kind)
			rr.rooms[id] = r
		}
		r.refs++
		rr.mu.Unlock()
		return r
	}
}

func (rr *RoomRegistry) release(r *room) {
	rr.mu.Lock()
	r.refs--
	rr.mu.Unlock()
}

// evictEmpty drops rooms with no members and no operation in flight. Evicted
// rooms for which needsPurge reports true are tombstoned and returned; they
// cannot be recreated until finishPurge is called with their id.
func (rr *RoomRegistry) evictEmpty(needsPurge func(*room) bool) (evicted int, purge []string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	for id, r := range rr.rooms {
		if r.refs > 0 {
			continue
		}
		r.mu.RLock()
		empty := r.empty()
		r.mu.RUnlock()
		if !empty {
			continue
		}
		delete(rr.rooms, id)
		evicted++
		if needsPurge != nil && needsPurge(r) {
			rr.purging[id] = make(chan struct{})
			purge = append(purge, id)
		}
	}
	sort.Strings(purge)
	return evicted, purge
}

// finishPurge lifts the tombstone of a purged room.
func (rr *RoomRegistry) finishPurge(id string) {
	rr.mu.Lock()
	done, ok := rr.purging[id]
	delete(rr.purging, id)
	rr.mu.Unlock()
	if ok {
		close(done)
	}
}

// Active lists the ids of rooms currently held in memory.
func (rr *RoomRegistry) Active() []string {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	ids := make([]string, 0, len(rr.rooms))
	for id := range rr.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
