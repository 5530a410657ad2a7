package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello     = "hello"
	InboundTypeJoin      = "join_room"
	InboundTypeLeave     = "leave_room"
	InboundTypeMessage   = "chat_message"
	InboundTypeTyping    = "typing_indicator"
	InboundTypeHistory   = "history"
	OutboundTypeEvent    = "event"
	OutboundTypeAck      = "ack"
	OutboundTypeError    = "error"
	EventRoomState       = "room_state"
	EventOnlineUsers     = "online_users"
	EventChatMessage     = "chat_message"
	EventTypingIndicator = "typing_indicator"
	EventHistory         = "history"
)

// HelloData authenticates the connection when no token came with the upgrade request.
type HelloData struct {
	Token    string `json:"token" validate:"required"`
	Protocol int    `json:"protocol,omitempty" validate:"gte=0"`
}

// JoinRoomData names a room directly or the peer of a private chat.
type JoinRoomData struct {
	RoomID string `json:"roomId,omitempty" validate:"required_without=PeerID,max=128"`
	PeerID string `json:"peerId,omitempty" validate:"required_without=RoomID,max=64"`
}

// LeaveRoomData requests to leave a room.
type LeaveRoomData struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

// ChatMessageData is a chat message from the client.
type ChatMessageData struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	Body   string `json:"body" validate:"required"`
}

// TypingData starts or stops the typing indicator.
type TypingData struct {
	RoomID   string `json:"roomId" validate:"required,max=128"`
	IsTyping bool   `json:"isTyping"`
}

// HistoryData asks for messages after a cursor. Since is a message id,
// SinceTS a unix timestamp in milliseconds; Since wins when both are set.
type HistoryData struct {
	RoomID  string `json:"roomId" validate:"required,max=128"`
	Since   int64  `json:"since,omitempty" validate:"gte=0"`
	SinceTS int64  `json:"sinceTs,omitempty" validate:"gte=0"`
	Limit   int    `json:"limit,omitempty" validate:"gte=0"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// ChatMessage is a committed message as clients see it. CreatedAt is unix milliseconds.
type ChatMessage struct {
	ID        int64  `json:"id"`
	RoomID    string `json:"roomId"`
	SenderID  string `json:"senderId"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"createdAt"`
}

// RoomState answers join_room.
type RoomState struct {
	RoomID         string        `json:"roomId"`
	Participants   []string      `json:"participants"`
	RecentMessages []ChatMessage `json:"recentMessages"`
	TypingUsers    []string      `json:"typingUsers"`
}

// OnlineUsers carries a room's participant set.
type OnlineUsers struct {
	RoomID string   `json:"roomId"`
	Users  []string `json:"users"`
}

// TypingIndicator reports a typing flag change.
type TypingIndicator struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// History is a page of messages in ascending id order.
type History struct {
	RoomID   string        `json:"roomId"`
	Messages []ChatMessage `json:"messages"`
}

// Welcome acknowledges hello.
type Welcome struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	ConnectionID string `json:"connectionId"`
	Protocol     int    `json:"protocol"`
}

// Ack confirms a request. MessageID is set for chat_message.
type Ack struct {
	RoomID    string `json:"roomId,omitempty"`
	MessageID int64  `json:"messageId,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
