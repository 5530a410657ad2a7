package http

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/campuschat/internal/core"
	"github.com/vovakirdan/campuschat/internal/proto"
)

func TestProtocolVersionMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	send(ctx, t, conn, proto.InboundTypeHello, "h1", proto.HelloData{Token: env.token(t, "alice"), Protocol: proto.ProtocolVersion + 1})

	reply := readUntil(ctx, t, conn, isReply("h1"))
	if reply.Type != proto.OutboundTypeError || reply.Error == nil || reply.Error.Code != core.ErrCodeUnsupportedVersion {
		t.Fatalf("expected unsupported_version error, got %+v", reply)
	}
	if env.hub.IsOnline("alice") {
		t.Fatalf("mismatched client must not be registered")
	}
}

func TestRepeatedHelloIsAcked(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn := env.connect(ctx, t, "alice")
	send(ctx, t, conn, proto.InboundTypeHello, "h2", proto.HelloData{Token: "ignored", Protocol: proto.ProtocolVersion})
	if reply := readUntil(ctx, t, conn, isReply("h2")); reply.Type != proto.OutboundTypeAck {
		t.Fatalf("expected ack, got %+v", reply)
	}
}
