package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/campuschat/internal/auth"
	"github.com/vovakirdan/campuschat/internal/config"
	"github.com/vovakirdan/campuschat/internal/core"
	"github.com/vovakirdan/campuschat/internal/policy"
	"github.com/vovakirdan/campuschat/internal/proto"
	"github.com/vovakirdan/campuschat/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	auth  *auth.Service
	store *sqlite.SQLiteStore
	cfg   config.Config
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"
	cfg.ReadHeaderTimeout = time.Second
	for _, m := range mutate {
		m(&cfg)
	}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	checker, err := policy.NewChecker(cfg.AuthzMode, st)
	if err != nil {
		t.Fatalf("failed to create checker: %v", err)
	}

	disabledLogger := zerolog.New(nil)
	hub := core.NewHub(core.Deps{
		Authenticator: authService,
		Authorizer:    checker,
		Messages:      st,
		Sequencer:     st,
		Logger:        &disabledLogger,
	}, core.Options{
		HistoryLimit:       cfg.HistoryLimit,
		MaxHistoryLimit:    cfg.MaxHistoryLimit,
		MaxBodyLength:      cfg.MaxBodyLength,
		TypingTTL:          cfg.TypingTTL,
		AuthzTimeout:       cfg.AuthzTimeout,
		PersistMaxAttempts: cfg.PersistMaxAttempts,
		PersistBackoff:     time.Millisecond,
		SendBuffer:         cfg.SendBuffer,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, authService, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, auth: authService, store: st, cfg: cfg}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.auth.IssueToken(userID, strings.ToUpper(userID))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// connect dials with the token in the query string and consumes the welcome ack.
func (e *testEnv) connect(ctx context.Context, t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL()+"?token="+e.token(t, userID), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	welcome := readUntil(ctx, t, conn, func(o rawOutbound) bool { return o.Type == proto.OutboundTypeAck })
	w := decodeData[proto.Welcome](t, welcome.Data)
	if w.UserID != userID {
		t.Fatalf("unexpected welcome: %+v", w)
	}
	return conn
}

type rawOutbound struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, id string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, ID: id, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, match func(rawOutbound) bool) rawOutbound {
	t.Helper()
	for {
		var out rawOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read outbound: %v", err)
		}
		if match(out) {
			return out
		}
	}
}

func isEvent(name string) func(rawOutbound) bool {
	return func(o rawOutbound) bool { return o.Type == proto.OutboundTypeEvent && o.Event == name }
}

func isReply(id string) func(rawOutbound) bool {
	return func(o rawOutbound) bool { return o.ID == id && o.Type != proto.OutboundTypeEvent }
}

func decodeData[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return v
}
