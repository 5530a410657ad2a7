package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/campuschat/internal/store"
	"github.com/vovakirdan/campuschat/internal/store/sqlite"
)

var errStorageDown = errors.New("storage unavailable")

// tokenAuth accepts any token as the user id, except those starting with "bad".
type tokenAuth struct{}

func (tokenAuth) Authenticate(_ context.Context, token string) (Identity, error) {
	if strings.HasPrefix(token, "bad") {
		return Identity{}, errors.New("invalid token")
	}
	return Identity{UserID: token, Name: strings.ToUpper(token)}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyLog fails the next failSaves SaveMessage calls. With landThenFail the
// failing calls still write the row, like a commit whose reply was lost.
type flakyLog struct {
	MessageLog

	mu           sync.Mutex
	failSaves    int
	landThenFail bool
	saves        int
}

func (f *flakyLog) SaveMessage(ctx context.Context, msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.failSaves > 0 {
		f.failSaves--
		if f.landThenFail {
			_ = f.MessageLog.SaveMessage(ctx, msg)
		}
		return errStorageDown
	}
	return f.MessageLog.SaveMessage(ctx, msg)
}

func (f *flakyLog) saveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

// flakySequencer fails the next failures NextSequence calls. With
// landThenFail the counter still advances, like an increment whose reply was lost.
type flakySequencer struct {
	Sequencer

	mu           sync.Mutex
	failures     int
	landThenFail bool
}

func (f *flakySequencer) NextSequence(ctx context.Context, roomID, kind string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		if f.landThenFail {
			_, _ = f.Sequencer.NextSequence(ctx, roomID, kind)
		}
		return 0, errStorageDown
	}
	return f.Sequencer.NextSequence(ctx, roomID, kind)
}

func (f *flakySequencer) fail(n int, landThenFail bool) {
	f.mu.Lock()
	f.failures = n
	f.landThenFail = landThenFail
	f.mu.Unlock()
}

// blockingPurgeLog holds PurgeMessages until release is closed.
type blockingPurgeLog struct {
	MessageLog

	entered chan string
	release chan struct{}
}

func newBlockingPurgeLog() *blockingPurgeLog {
	return &blockingPurgeLog{
		entered: make(chan string, 8),
		release: make(chan struct{}),
	}
}

func (b *blockingPurgeLog) PurgeMessages(ctx context.Context, roomID string) error {
	b.entered <- roomID
	<-b.release
	return b.MessageLog.PurgeMessages(ctx, roomID)
}

type testHub struct {
	*Hub
	store *sqlite.SQLiteStore
	clock *fakeClock
}

type hubOption func(*Deps, *Options)

func newTestHub(t *testing.T, opts ...hubOption) *testHub {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clock := newFakeClock()
	deps := Deps{
		Authenticator: tokenAuth{},
		Messages:      st,
		Sequencer:     st,
	}
	o := Options{
		PersistMaxAttempts: 3,
		PersistBackoff:     time.Millisecond,
		AuthzTimeout:       200 * time.Millisecond,
		Now:                clock.Now,
	}
	for _, opt := range opts {
		opt(&deps, &o)
	}
	return &testHub{Hub: NewHub(deps, o), store: st, clock: clock}
}

func connect(t *testing.T, h *testHub, connID, userID string) *Conn {
	t.Helper()
	c, err := h.Register(context.Background(), connID, userID)
	require.NoError(t, err)
	return c
}

func join(t *testing.T, h *testHub, c *Conn, roomID string) *RoomSnapshot {
	t.Helper()
	snap, err := h.Join(context.Background(), c, roomID)
	require.NoError(t, err)
	return snap
}

func seedMessages(t *testing.T, st *sqlite.SQLiteStore, roomID string, bodies ...string) {
	t.Helper()
	ctx := context.Background()
	for _, body := range bodies {
		seq, err := st.NextSequence(ctx, roomID, "course")
		require.NoError(t, err)
		require.NoError(t, st.SaveMessage(ctx, &store.Message{
			RoomID: roomID, RoomKind: "course", Seq: seq, SenderID: "seed", Body: body, CreatedAt: time.Now().UTC(),
		}))
	}
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// nextEvent returns the next queued event whatever its kind.
func nextEvent(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event received")
		return nil
	}
}

func noEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func drain(c *Conn) {
	for {
		select {
		case <-c.Events():
		default:
			return
		}
	}
}

func messageIDs(msgs []Message) []int64 {
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}
