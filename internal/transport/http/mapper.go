package http

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/vovakirdan/campuschat/internal/core"
	"github.com/vovakirdan/campuschat/internal/proto"
)

// dispatch runs one client request. Replies go through the connection's
// event queue so they stay ordered with room broadcasts.
func (h *WSHandler) dispatch(ctx context.Context, client *core.Conn, limiter *rateLimiter, in proto.Inbound) {
	ctx = core.WithRequestID(ctx, in.ID)
	reply := func(room string, err error) {
		if err != nil {
			client.Deliver(core.ErrorEvent(in.ID, room, err))
			return
		}
		client.Deliver(core.AckEvent(in.ID, room))
	}

	switch in.Type {
	case proto.InboundTypeHello:
		var hello proto.HelloData
		if err := proto.Decode(in.Data, &hello); err != nil {
			reply("", core.BadRequest(err.Error()))
			return
		}
		reply("", checkProtocol(hello.Protocol))

	case proto.InboundTypeJoin:
		var join proto.JoinRoomData
		if err := proto.Decode(in.Data, &join); err != nil {
			reply("", core.BadRequest(err.Error()))
			return
		}
		roomID := join.RoomID
		if join.PeerID != "" {
			roomID = core.ResolvePrivateRoomID(client.UserID, join.PeerID)
		}
		// Success is answered by the room_state event carrying the request id.
		if _, err := h.hub.Join(ctx, client, roomID); err != nil {
			reply(roomID, err)
		}

	case proto.InboundTypeLeave:
		var leave proto.LeaveRoomData
		if err := proto.Decode(in.Data, &leave); err != nil {
			reply("", core.BadRequest(err.Error()))
			return
		}
		reply(leave.RoomID, h.hub.Leave(client, leave.RoomID))

	case proto.InboundTypeMessage:
		var msg proto.ChatMessageData
		if err := proto.Decode(in.Data, &msg); err != nil {
			reply("", core.BadRequest(err.Error()))
			return
		}
		if !limiter.allow() {
			reply(msg.RoomID, &core.CoreError{Code: core.ErrCodeRateLimited, Message: "too many messages"})
			return
		}
		sent, err := h.hub.Send(ctx, client, msg.RoomID, msg.Body)
		if err != nil {
			reply(msg.RoomID, err)
			return
		}
		ack := core.AckEvent(in.ID, msg.RoomID)
		ack.Message = sent
		client.Deliver(ack)

	case proto.InboundTypeTyping:
		var typing proto.TypingData
		if err := proto.Decode(in.Data, &typing); err != nil {
			reply("", core.BadRequest(err.Error()))
			return
		}
		if !limiter.allow() {
			reply(typing.RoomID, &core.CoreError{Code: core.ErrCodeRateLimited, Message: "too many requests"})
			return
		}
		err := h.hub.SetTyping(client, typing.RoomID, typing.IsTyping)
		if err != nil || in.ID != "" {
			reply(typing.RoomID, err)
		}

	case proto.InboundTypeHistory:
		var req proto.HistoryData
		if err := proto.Decode(in.Data, &req); err != nil {
			reply("", core.BadRequest(err.Error()))
			return
		}
		cursor := core.Cursor{AfterID: req.Since}
		if req.SinceTS > 0 {
			cursor.AfterTime = time.UnixMilli(req.SinceTS)
		}
		msgs, err := h.hub.HistoryFor(ctx, client.UserID, req.RoomID, cursor, req.Limit)
		if err != nil {
			reply(req.RoomID, err)
			return
		}
		client.Deliver(&core.Event{Kind: core.EventHistory, RequestID: in.ID, Room: req.RoomID, Messages: msgs})

	default:
		reply("", core.BadRequest("unknown message type"))
	}
}

func chatMessageFromCore(m core.Message) proto.ChatMessage {
	return proto.ChatMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt.UnixMilli(),
	}
}

func chatMessagesFromCore(msgs []core.Message) []proto.ChatMessage {
	return lo.Map(msgs, func(m core.Message, _ int) proto.ChatMessage {
		return chatMessageFromCore(m)
	})
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomState:
		snap := event.Snapshot
		if snap == nil {
			snap = &core.RoomSnapshot{RoomID: event.Room}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			ID:    event.RequestID,
			Event: proto.EventRoomState,
			Data: proto.RoomState{
				RoomID:         snap.RoomID,
				Participants:   lo.Ternary(snap.Participants == nil, []string{}, snap.Participants),
				RecentMessages: chatMessagesFromCore(snap.RecentMessages),
				TypingUsers:    lo.Ternary(snap.TypingUsers == nil, []string{}, snap.TypingUsers),
			},
		}
	case core.EventOnlineUsers:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventOnlineUsers,
			Data:  proto.OnlineUsers{RoomID: event.Room, Users: event.Users},
		}
	case core.EventChatMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventChatMessage,
			Data:  chatMessageFromCore(event.Message),
		}
	case core.EventTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventTypingIndicator,
			Data:  proto.TypingIndicator{RoomID: event.Room, UserID: event.User, IsTyping: event.IsTyping},
		}
	case core.EventHistory:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			ID:    event.RequestID,
			Event: proto.EventHistory,
			Data:  proto.History{RoomID: event.Room, Messages: chatMessagesFromCore(event.Messages)},
		}
	case core.EventAck:
		return proto.Outbound{
			Type: proto.OutboundTypeAck,
			ID:   event.RequestID,
			Data: proto.Ack{RoomID: event.Room, MessageID: event.Message.ID},
		}
	case core.EventError:
		ce := event.Error
		if ce == nil {
			ce = core.ErrInternal
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			ID:    event.RequestID,
			Error: &proto.Error{Code: ce.Code, Msg: ce.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
