package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/campuschat/internal/core"
	"github.com/vovakirdan/campuschat/internal/proto"
)

func makeJWT(secret, aud, iss, sub, name string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(ttl).Unix(),
	}
	if aud != "" {
		claims["aud"] = aud
	}
	if iss != "" {
		claims["iss"] = iss
	}
	if name != "" {
		claims["name"] = name
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func TestWebSocketJWTViaHeader(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := makeJWT(env.cfg.JWTSecret, env.cfg.JWTAudience, env.cfg.JWTIssuer, "user1", "Alice", time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.Dial(ctx, env.wsURL(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	welcome := readUntil(ctx, t, conn, isReply(""))
	w := decodeData[proto.Welcome](t, welcome.Data)
	if w.UserID != "user1" || w.Name != "Alice" || w.Protocol != proto.ProtocolVersion {
		t.Fatalf("unexpected welcome: %+v", w)
	}
	if !env.hub.IsOnline("user1") {
		t.Fatalf("user should be online after handshake")
	}
}

func TestWebSocketJWTViaHello(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	send(ctx, t, conn, proto.InboundTypeHello, "h1", proto.HelloData{Token: env.token(t, "bob"), Protocol: proto.ProtocolVersion})
	welcome := readUntil(ctx, t, conn, isReply("h1"))
	if welcome.Type != proto.OutboundTypeAck {
		t.Fatalf("expected welcome ack, got %+v", welcome)
	}
	if w := decodeData[proto.Welcome](t, welcome.Data); w.UserID != "bob" || w.ConnectionID == "" {
		t.Fatalf("unexpected welcome: %+v", w)
	}
}

func TestWebSocketJWTRejected(t *testing.T) {
	env := newTestEnv(t)

	expired, err := makeJWT(env.cfg.JWTSecret, env.cfg.JWTAudience, env.cfg.JWTIssuer, "user1", "", -time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}
	wrongSecret, err := makeJWT("other-secret", env.cfg.JWTAudience, env.cfg.JWTIssuer, "user1", "", time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}
	wrongAudience, err := makeJWT(env.cfg.JWTSecret, "someone-else", env.cfg.JWTIssuer, "user1", "", time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "expired", token: expired},
		{name: "wrong secret", token: wrongSecret},
		{name: "wrong audience", token: wrongAudience},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, _, err := websocket.Dial(ctx, env.wsURL()+"?token="+tt.token, nil)
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			defer conn.Close(websocket.StatusNormalClosure, "done")

			var out rawOutbound
			if err := wsjson.Read(ctx, conn, &out); err != nil {
				t.Fatalf("read: %v", err)
			}
			if out.Type != proto.OutboundTypeError || out.Error == nil || out.Error.Code != core.ErrCodeUnauthenticated {
				t.Fatalf("expected unauthenticated error, got %+v", out)
			}

			_, _, err = conn.Read(ctx)
			if status := websocket.CloseStatus(err); status != websocket.StatusPolicyViolation {
				t.Fatalf("expected policy violation close, got %v (%v)", status, err)
			}
			if env.hub.IsOnline("user1") {
				t.Fatalf("rejected connection must not count as online")
			}
		})
	}
}

func TestWebSocketFirstFrameMustBeHello(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	send(ctx, t, conn, proto.InboundTypeJoin, "j1", proto.JoinRoomData{RoomID: "course_101"})
	reply := readUntil(ctx, t, conn, isReply("j1"))
	if reply.Error == nil || reply.Error.Code != core.ErrCodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %+v", reply)
	}
}
