package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomState answers a join with the room snapshot.
	EventRoomState EventKind = iota
	// EventOnlineUsers carries the participant set of a room after it changed.
	EventOnlineUsers
	// EventChatMessage notifies clients about a committed chat message.
	EventChatMessage
	// EventTyping notifies clients that a user started or stopped typing.
	EventTyping
	// EventHistory delivers a page of history requested by the client.
	EventHistory
	// EventAck confirms a client request.
	EventAck
	// EventError notifies clients about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventRoomState:
		return "room_state"
	case EventOnlineUsers:
		return "online_users"
	case EventChatMessage:
		return "chat_message"
	case EventTyping:
		return "typing_indicator"
	case EventHistory:
		return "history"
	case EventAck:
		return "ack"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind EventKind
	// RequestID correlates replies (room state, acks, errors) with the client request.
	RequestID string
	Room      string
	User      string
	Users     []string // EventOnlineUsers
	IsTyping  bool     // EventTyping
	Message   Message
	Messages  []Message     // EventHistory
	Snapshot  *RoomSnapshot // EventRoomState
	Error     *CoreError
}

// RoomSnapshot is what a joining connection needs to render a room.
type RoomSnapshot struct {
	RoomID         string
	Participants   []string
	RecentMessages []Message
	TypingUsers    []string
}

// AckEvent builds an acknowledgement for a client request.
func AckEvent(requestID, room string) *Event {
	return &Event{Kind: EventAck, RequestID: requestID, Room: room}
}

// ErrorEvent builds an error reply for a client request.
func ErrorEvent(requestID, room string, err error) *Event {
	return &Event{Kind: EventError, RequestID: requestID, Room: room, Error: AsCoreError(err)}
}
