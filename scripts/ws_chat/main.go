package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/campuschat/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

var errStdinClosed = errors.New("stdin closed")

type chat struct {
	addr   string
	token  string
	room   atomic.Value // string; resolved by room_state for private rooms
	peer   string
	lines  <-chan string
	thread *proto.Timeline
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "access token (see `campuschat token`)")
	room := flag.String("room", "course_101", "room to join")
	peer := flag.String("peer", "", "open a private room with this user instead of -room")
	flag.Parse()

	if *token == "" {
		return errors.New("-token is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &chat{
		addr:   *addr,
		token:  *token,
		peer:   *peer,
		lines:  readLines(),
		thread: proto.NewTimeline(),
	}
	c.room.Store(*room)

	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0

	for {
		started := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil || errors.Is(err, errStdinClosed) {
			return nil
		}
		if err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusPolicyViolation {
				return err
			}
		}
		if time.Since(started) > time.Minute {
			b.Reset()
		}
		wait := b.NextBackOff()
		log.Printf("disconnected: %v; reconnecting in %s", err, wait.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func readLines() <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// session runs one connection until it drops. Messages missed while
// disconnected are fetched with a history request from the timeline cursor.
func (c *chat) session(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, c.addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	join := proto.JoinRoomData{RoomID: c.room.Load().(string)}
	if c.peer != "" {
		join = proto.JoinRoomData{PeerID: c.peer}
	}
	if err := send(ctx, conn, proto.InboundTypeJoin, "join", join); err != nil {
		return err
	}

	errs := make(chan error, 2)
	go func() { errs <- c.readLoop(ctx, conn, c.thread.Cursor()) }()
	go func() { errs <- c.writeLoop(ctx, conn) }()

	return <-errs
}

func (c *chat) readLoop(ctx context.Context, conn *websocket.Conn, resumeFrom int64) error {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return err
		}
		if outbound.Error != nil {
			fmt.Printf("! %s: %s\n", outbound.Error.Code, outbound.Error.Msg)
			continue
		}
		if outbound.Type != proto.OutboundTypeEvent {
			continue
		}

		switch outbound.Event {
		case proto.EventRoomState:
			var state proto.RoomState
			if err := decode(outbound.Data, &state); err != nil {
				return err
			}
			c.room.Store(state.RoomID)
			fmt.Printf("[%s] joined, participants: %s\n", state.RoomID, strings.Join(state.Participants, ", "))
			if resumeFrom > 0 {
				req := proto.HistoryData{RoomID: state.RoomID, Since: resumeFrom}
				if err := send(ctx, conn, proto.InboundTypeHistory, "resync", req); err != nil {
					return err
				}
			}
			c.show(state.RecentMessages...)
		case proto.EventHistory:
			var page proto.History
			if err := decode(outbound.Data, &page); err != nil {
				return err
			}
			c.show(page.Messages...)
		case proto.EventChatMessage:
			var msg proto.ChatMessage
			if err := decode(outbound.Data, &msg); err != nil {
				return err
			}
			c.show(msg)
		case proto.EventOnlineUsers:
			var online proto.OnlineUsers
			if err := decode(outbound.Data, &online); err == nil {
				fmt.Printf("[%s] online: %s\n", online.RoomID, strings.Join(online.Users, ", "))
			}
		case proto.EventTypingIndicator:
			var typing proto.TypingIndicator
			if err := decode(outbound.Data, &typing); err == nil && typing.IsTyping {
				fmt.Printf("[%s] %s is typing...\n", typing.RoomID, typing.UserID)
			}
		}
	}
}

func (c *chat) show(msgs ...proto.ChatMessage) {
	for _, m := range msgs {
		if !c.thread.Add(m) {
			continue
		}
		at := time.UnixMilli(m.CreatedAt).Format(time.Kitchen)
		fmt.Printf("[%s #%d %s] %s: %s\n", m.RoomID, m.ID, at, m.SenderID, m.Body)
	}
}

func (c *chat) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-c.lines:
			if !ok {
				return errStdinClosed
			}
			body := strings.TrimSpace(line)
			if body == "" {
				continue
			}
			if err := send(ctx, conn, proto.InboundTypeMessage, "", proto.ChatMessageData{RoomID: c.room.Load().(string), Body: body}); err != nil {
				return err
			}
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, typ, id string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, ID: id, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func decode(data any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
