package core

// PresenceTracker answers who is online and publishes room participant sets.
// A user is online while they hold at least one registered connection; a user
// is present in a room while at least one of their connections joined it.
type PresenceTracker struct {
	conns *ConnectionRegistry
}

// NewPresenceTracker builds a tracker over the connection registry.
func NewPresenceTracker(conns *ConnectionRegistry) *PresenceTracker {
	return &PresenceTracker{conns: conns}
}

// IsOnline reports global presence.
func (p *PresenceTracker) IsOnline(userID string) bool {
	return p.conns.IsOnline(userID)
}

// OnlineUsers lists every globally online user.
func (p *PresenceTracker) OnlineUsers() []string {
	return p.conns.OnlineUsers()
}

// publish broadcasts the participant set of r. The caller holds r.mu and only
// calls this when the set actually changed.
func (p *PresenceTracker) publish(r *room) {
	r.broadcast(&Event{
		Kind:  EventOnlineUsers,
		Room:  r.id,
		Users: r.participants(),
	}, "")
}
