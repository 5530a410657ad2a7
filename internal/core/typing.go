package core

import (
	"sort"
	"sync"
	"time"
)

// TypingAggregator tracks per-room typing flags with a time-to-live.
// A flag counts as absent once its deadline has passed, even before the
// sweeper removes it.
type TypingAggregator struct {
	ttl time.Duration

	mu    sync.Mutex
	rooms map[string]map[string]time.Time // roomID -> userID -> expiresAt
}

// NewTypingAggregator creates an aggregator with the given flag lifetime.
func NewTypingAggregator(ttl time.Duration) *TypingAggregator {
	return &TypingAggregator{
		ttl:   ttl,
		rooms: make(map[string]map[string]time.Time),
	}
}

// Start sets or refreshes the flag of user in room.
func (t *TypingAggregator) Start(roomID, userID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.rooms[roomID]
	if users == nil {
		users = make(map[string]time.Time)
		t.rooms[roomID] = users
	}
	users[userID] = now.Add(t.ttl)
}

// Stop clears the flag. It returns true when a flag was still recorded, which
// includes one that lapsed but has not been swept yet: that flag still owes
// its stop notification.
func (t *TypingAggregator) Stop(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.rooms[roomID]
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}

// IsTyping reports whether user has a live flag in room.
func (t *TypingAggregator) IsTyping(roomID, userID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	expiresAt, ok := t.rooms[roomID][userID]
	return ok && now.Before(expiresAt)
}

// Active lists users with a live flag in room.
func (t *TypingAggregator) Active(roomID string, now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := make([]string, 0, len(t.rooms[roomID]))
	for u, expiresAt := range t.rooms[roomID] {
		if now.Before(expiresAt) {
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users
}

// Expire removes lapsed flags of a room and returns their users.
func (t *TypingAggregator) Expire(roomID string, now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.rooms[roomID]
	var expired []string
	for u, expiresAt := range users {
		if !now.Before(expiresAt) {
			delete(users, u)
			expired = append(expired, u)
		}
	}
	if len(users) == 0 {
		delete(t.rooms, roomID)
	}
	sort.Strings(expired)
	return expired
}

// Rooms lists rooms that hold at least one flag.
func (t *TypingAggregator) Rooms() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.rooms))
	for id := range t.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
