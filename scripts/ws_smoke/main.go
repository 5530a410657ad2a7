package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/campuschat/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "access token (see `campuschat token`)")
	room := flag.String("room", "course_101", "room id")
	text := flag.String("text", "hello from smoke test", "message body to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("-token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ, id string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, ID: id, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeHello, "hello", proto.HelloData{Token: *token, Protocol: proto.ProtocolVersion}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeJoin, "join", proto.JoinRoomData{RoomID: *room}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeMessage, "msg", proto.ChatMessageData{RoomID: *room, Body: *text}); err != nil {
		return err
	}

	var acked, echoed bool
	for !acked || !echoed {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s id=%s", outbound.Type, outbound.ID)
		if outbound.Event != "" {
			fmt.Printf(" event=%s", outbound.Event)
		}
		fmt.Println()

		if outbound.Error != nil {
			return fmt.Errorf("request %s failed: %s: %s", outbound.ID, outbound.Error.Code, outbound.Error.Msg)
		}

		raw, err := json.Marshal(outbound.Data)
		if err != nil {
			return fmt.Errorf("marshal outbound data: %w", err)
		}

		switch {
		case outbound.Type == proto.OutboundTypeAck && outbound.ID == "msg":
			var ack proto.Ack
			if err := json.Unmarshal(raw, &ack); err != nil {
				return fmt.Errorf("unmarshal ack: %w", err)
			}
			fmt.Printf("Ack: room=%s message=%d\n", ack.RoomID, ack.MessageID)
			acked = true
		case outbound.Event == proto.EventRoomState:
			var state proto.RoomState
			if err := json.Unmarshal(raw, &state); err == nil {
				fmt.Printf("Joined: room=%s participants=%v recent=%d\n", state.RoomID, state.Participants, len(state.RecentMessages))
			}
		case outbound.Event == proto.EventChatMessage:
			var msg proto.ChatMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("Message: room=%s id=%d sender=%s body=%q ts=%d\n", msg.RoomID, msg.ID, msg.SenderID, msg.Body, msg.CreatedAt)
			echoed = true
		}
	}
	return nil
}
