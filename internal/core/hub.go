package core

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Authorizer decides whether a user may join a room. It is owned by the
// course layer; the hub bounds every call with a timeout and fails closed.
type Authorizer interface {
	CanJoin(ctx context.Context, userID, roomID string) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, userID, roomID string) (bool, error)

func (f AuthorizerFunc) CanJoin(ctx context.Context, userID, roomID string) (bool, error) {
	return f(ctx, userID, roomID)
}

// Options tunes hub behavior.
type Options struct {
	HistoryLimit       int
	MaxHistoryLimit    int
	MaxBodyLength      int
	TypingTTL          time.Duration
	SweepInterval      time.Duration
	AuthzTimeout       time.Duration
	PersistMaxAttempts int
	PersistBackoff     time.Duration
	SendBuffer         int
	// Now overrides the clock used for typing deadlines and message timestamps.
	Now func() time.Time
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		HistoryLimit:       50,
		MaxHistoryLimit:    200,
		MaxBodyLength:      4000,
		TypingTTL:          6 * time.Second,
		SweepInterval:      time.Second,
		AuthzTimeout:       2 * time.Second,
		PersistMaxAttempts: 5,
		PersistBackoff:     50 * time.Millisecond,
		SendBuffer:         64,
		Now:                time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = d.HistoryLimit
	}
	if o.MaxHistoryLimit < o.HistoryLimit {
		o.MaxHistoryLimit = max(d.MaxHistoryLimit, o.HistoryLimit)
	}
	if o.MaxBodyLength <= 0 {
		o.MaxBodyLength = d.MaxBodyLength
	}
	if o.TypingTTL <= 0 {
		o.TypingTTL = d.TypingTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.AuthzTimeout <= 0 {
		o.AuthzTimeout = d.AuthzTimeout
	}
	if o.PersistMaxAttempts <= 0 {
		o.PersistMaxAttempts = d.PersistMaxAttempts
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// Deps are the collaborators the hub needs.
type Deps struct {
	Authenticator Authenticator
	Authorizer    Authorizer
	Messages      MessageLog
	Sequencer     Sequencer
	Logger        *zerolog.Logger
}

// Hub coordinates connections, rooms, presence, typing and message relay.
type Hub struct {
	opts Options
	log  *zerolog.Logger

	conns    *ConnectionRegistry
	rooms    *RoomRegistry
	presence *PresenceTracker
	typing   *TypingAggregator
	relay    *Relay

	messages MessageLog
	authz    Authorizer
}

// NewHub constructs a hub.
func NewHub(deps Deps, opts Options) *Hub {
	opts = opts.withDefaults()
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	conns := NewConnectionRegistry(deps.Authenticator, opts.SendBuffer)
	return &Hub{
		opts:     opts,
		log:      logger,
		conns:    conns,
		rooms:    NewRoomRegistry(),
		presence: NewPresenceTracker(conns),
		typing:   NewTypingAggregator(opts.TypingTTL),
		relay:    NewRelay(deps.Messages, deps.Sequencer, opts.PersistMaxAttempts, opts.PersistBackoff, logger),
		messages: deps.Messages,
		authz:    deps.Authorizer,
	}
}

type requestIDKey struct{}

// WithRequestID attaches the client request id that replies should carry.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Register authenticates a new connection.
func (h *Hub) Register(ctx context.Context, connID, token string) (*Conn, error) {
	conn, err := h.conns.Register(ctx, connID, token)
	if err != nil {
		h.log.Debug().Err(err).Str("conn_id", connID).Msg("register rejected")
		return nil, err
	}
	h.log.Info().Str("conn_id", connID).Str("user_id", conn.UserID).Msg("connection registered")
	return conn, nil
}

// Unregister removes a connection from every room it joined. Unknown or
// already removed connections are ignored.
func (h *Hub) Unregister(connID string) {
	conn, rooms := h.conns.remove(connID)
	if conn == nil {
		return
	}
	for _, roomID := range rooms {
		r := h.rooms.acquire(roomID, "", false)
		if r == nil {
			continue
		}
		r.mu.Lock()
		h.leaveLocked(r, conn.UserID, conn.ID)
		r.mu.Unlock()
		h.rooms.release(r)
	}
	conn.Close(CloseUnregistered)
	h.log.Info().Str("conn_id", connID).Str("user_id", conn.UserID).Int("rooms", len(rooms)).Msg("connection unregistered")
}

// Authorize checks whether userID may join roomID.
func (h *Hub) Authorize(ctx context.Context, userID, roomID string) error {
	kind, err := ParseRoomID(roomID)
	if err != nil {
		return err
	}
	if kind == RoomKindPrivate {
		if !PrivateRoomIncludes(roomID, userID) {
			return ErrForbidden
		}
		return nil
	}
	if h.authz == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.AuthzTimeout)
	defer cancel()

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := h.authz.CanJoin(ctx, userID, roomID)
		done <- result{ok: ok, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			h.log.Warn().Err(res.err).Str("user_id", userID).Str("room_id", roomID).Msg("authorization check failed")
			return ErrAuthzTimeout
		}
		if !res.ok {
			return ErrForbidden
		}
		return nil
	case <-ctx.Done():
		h.log.Warn().Str("user_id", userID).Str("room_id", roomID).Dur("timeout", h.opts.AuthzTimeout).Msg("authorization check timed out")
		return ErrAuthzTimeout
	}
}

// Join adds conn to a room and delivers the room snapshot to it as an
// EventRoomState. Joining a room the connection is already in re-sends the
// snapshot without changing membership.
func (h *Hub) Join(ctx context.Context, conn *Conn, roomID string) (*RoomSnapshot, error) {
	kind, err := ParseRoomID(roomID)
	if err != nil {
		return nil, err
	}
	if err := h.Authorize(ctx, conn.UserID, roomID); err != nil {
		return nil, err
	}

	r := h.rooms.acquire(roomID, kind, true)
	defer h.rooms.release(r)

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	recent, err := h.messages.ListRecent(ctx, roomID, h.opts.HistoryLimit)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("load recent history")
		return nil, ErrInternal
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	newcomer := r.add(conn)
	if !h.conns.markJoined(conn.ID, roomID) {
		r.remove(conn.UserID, conn.ID)
		return nil, ErrUnauthenticated
	}

	snap := &RoomSnapshot{
		RoomID:         roomID,
		Participants:   r.participants(),
		RecentMessages: messagesFromRecords(recent),
		TypingUsers:    h.typing.Active(roomID, h.opts.Now()),
	}
	conn.Deliver(&Event{
		Kind:      EventRoomState,
		RequestID: requestIDFrom(ctx),
		Room:      roomID,
		Snapshot:  snap,
	})
	if newcomer {
		h.presence.publish(r)
	}

	h.log.Debug().Str("room_id", roomID).Str("user_id", conn.UserID).Str("conn_id", conn.ID).Bool("newcomer", newcomer).Msg("joined room")
	return snap, nil
}

// Leave removes conn from a room. Leaving a room the connection is not in is a no-op.
func (h *Hub) Leave(conn *Conn, roomID string) error {
	if _, err := ParseRoomID(roomID); err != nil {
		return err
	}
	r := h.rooms.acquire(roomID, "", false)
	if r == nil {
		return nil
	}
	defer h.rooms.release(r)

	r.mu.Lock()
	h.leaveLocked(r, conn.UserID, conn.ID)
	r.mu.Unlock()
	h.conns.markLeft(conn.ID, roomID)
	return nil
}

// leaveLocked removes a connection and publishes the resulting changes.
// The caller holds r.mu.
func (h *Hub) leaveLocked(r *room, userID, connID string) {
	removed, userGone := r.remove(userID, connID)
	if !removed {
		return
	}
	if h.typing.Stop(r.id, userID) {
		r.broadcast(typingEvent(r.id, userID, false), userID)
	}
	if userGone {
		h.presence.publish(r)
	}
}

// Send commits a chat message to a room and broadcasts it to every
// connection in the room, the sender's included.
func (h *Hub) Send(ctx context.Context, conn *Conn, roomID, body string) (Message, error) {
	kind, err := ParseRoomID(roomID)
	if err != nil {
		return Message{}, err
	}
	if err := h.validateBody(body); err != nil {
		return Message{}, err
	}

	r := h.rooms.acquire(roomID, kind, false)
	if r == nil {
		return Message{}, ErrNotAMember
	}
	defer h.rooms.release(r)

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.Lock()
	if !r.hasUser(conn.UserID) {
		r.mu.Unlock()
		return Message{}, ErrNotAMember
	}
	if h.typing.Stop(roomID, conn.UserID) {
		r.broadcast(typingEvent(roomID, conn.UserID, false), conn.UserID)
	}
	r.mu.Unlock()

	msg := Message{
		RoomID:    roomID,
		SenderID:  conn.UserID,
		Body:      body,
		CreatedAt: h.opts.Now().UTC().Truncate(time.Millisecond),
	}
	if err := h.relay.Commit(ctx, kind, &msg); err != nil {
		return msg, err
	}

	r.mu.RLock()
	r.broadcast(&Event{Kind: EventChatMessage, Room: roomID, User: conn.UserID, Message: msg}, "")
	r.mu.RUnlock()

	return msg, nil
}

func (h *Hub) validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return BadRequest("message body is empty")
	}
	if !utf8.ValidString(body) {
		return BadRequest("message body is not valid utf-8")
	}
	if utf8.RuneCountInString(body) > h.opts.MaxBodyLength {
		return BadRequest("message body is too long")
	}
	return nil
}

// SetTyping starts or stops the typing flag of conn's user in a room.
// Starting always notifies the room so clients can extend their own timers;
// stopping notifies only if a flag was set.
func (h *Hub) SetTyping(conn *Conn, roomID string, isTyping bool) error {
	if _, err := ParseRoomID(roomID); err != nil {
		return err
	}
	r := h.rooms.acquire(roomID, "", false)
	if r == nil {
		return ErrNotAMember
	}
	defer h.rooms.release(r)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasUser(conn.UserID) {
		return ErrNotAMember
	}

	if isTyping {
		h.typing.Start(roomID, conn.UserID, h.opts.Now())
		r.broadcast(typingEvent(roomID, conn.UserID, true), conn.UserID)
		return nil
	}
	if h.typing.Stop(roomID, conn.UserID) {
		r.broadcast(typingEvent(roomID, conn.UserID, false), conn.UserID)
	}
	return nil
}

// IsTyping reports whether user currently has a live typing flag in a room.
func (h *Hub) IsTyping(roomID, userID string) bool {
	return h.typing.IsTyping(roomID, userID, h.opts.Now())
}

func typingEvent(roomID, userID string, isTyping bool) *Event {
	return &Event{Kind: EventTyping, Room: roomID, User: userID, IsTyping: isTyping}
}

// OnlineUsers returns the participant set of a room, empty for inactive rooms.
func (h *Hub) OnlineUsers(roomID string) []string {
	r := h.rooms.acquire(roomID, "", false)
	if r == nil {
		return []string{}
	}
	defer h.rooms.release(r)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participants()
}

// IsOnline reports whether the user holds at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	return h.presence.IsOnline(userID)
}

// Presence exposes global presence queries.
func (h *Hub) Presence() *PresenceTracker {
	return h.presence
}

// Connections exposes the connection registry.
func (h *Hub) Connections() *ConnectionRegistry {
	return h.conns
}

// Sweep expires lapsed typing flags and evicts empty rooms. Ephemeral rooms
// lose their history when evicted.
func (h *Hub) Sweep(ctx context.Context, now time.Time) {
	for _, roomID := range h.typing.Rooms() {
		r := h.rooms.acquire(roomID, "", false)
		if r == nil {
			h.typing.Expire(roomID, now)
			continue
		}
		r.mu.Lock()
		for _, userID := range h.typing.Expire(roomID, now) {
			r.broadcast(typingEvent(roomID, userID, false), userID)
		}
		r.mu.Unlock()
		h.rooms.release(r)
	}

	evicted, purge := h.rooms.evictEmpty(func(r *room) bool {
		return !r.kind.Persistent()
	})
	if evicted > 0 {
		h.log.Debug().Int("rooms", evicted).Int("purged", len(purge)).Msg("evicted empty rooms")
	}
	// Storage I/O runs outside the registry lock; only a rejoin of the
	// purged room itself waits for it.
	for _, roomID := range purge {
		h.purge(ctx, roomID)
		h.rooms.finishPurge(roomID)
	}
}

// purge drops the messages of an evicted ephemeral room. The sequence
// counter is kept so a recreated room never reissues an id.
func (h *Hub) purge(ctx context.Context, roomID string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.messages.PurgeMessages(ctx, roomID); err != nil {
		h.log.Warn().Err(err).Str("room_id", roomID).Msg("purge ephemeral room")
	}
}

// Run sweeps on a ticker until ctx is done, then drops every connection.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-ticker.C:
			h.Sweep(ctx, h.opts.Now())
		}
	}
}

func (h *Hub) shutdown() {
	for _, c := range h.conns.all() {
		c.Close(CloseShutdown)
	}
}

// IsCode reports whether err is a CoreError with the given code.
func IsCode(err error, code string) bool {
	var ce *CoreError
	return errors.As(err, &ce) && ce.Code == code
}
