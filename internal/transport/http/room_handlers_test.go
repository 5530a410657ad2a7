package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/campuschat/internal/core"
	"github.com/vovakirdan/campuschat/internal/proto"
)

func (e *testEnv) get(t *testing.T, path, token string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, e.ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func seedRoom(t *testing.T, env *testEnv, userID, roomID string, bodies ...string) {
	t.Helper()
	ctx := context.Background()

	conn, err := env.hub.Register(ctx, "seed-"+userID, env.token(t, userID))
	require.NoError(t, err)
	_, err = env.hub.Join(ctx, conn, roomID)
	require.NoError(t, err)
	for _, body := range bodies {
		_, err := env.hub.Send(ctx, conn, roomID, body)
		require.NoError(t, err)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	seedRoom(t, env, "u1", "course_101", "one", "two", "three")
	token := env.token(t, "u2")

	tests := []struct {
		name    string
		path    string
		token   string
		status  int
		wantIDs []int64
		code    string
	}{
		{name: "recent", path: "/api/rooms/course_101/messages", token: token, status: http.StatusOK, wantIDs: []int64{1, 2, 3}},
		{name: "since", path: "/api/rooms/course_101/messages?since=1", token: token, status: http.StatusOK, wantIDs: []int64{2, 3}},
		{name: "limit", path: "/api/rooms/course_101/messages?since=0&limit=1", token: token, status: http.StatusOK, wantIDs: []int64{3}},
		{name: "caught up", path: "/api/rooms/course_101/messages?since=3", token: token, status: http.StatusOK, wantIDs: []int64{}},
		{name: "bad cursor", path: "/api/rooms/course_101/messages?since=-4", token: token, status: http.StatusBadRequest, code: core.ErrCodeBadRequest},
		{name: "invalid room", path: "/api/rooms/general/messages", token: token, status: http.StatusBadRequest, code: core.ErrCodeInvalidRoom},
		{name: "private outsider", path: "/api/rooms/private-u3-u7/messages", token: token, status: http.StatusForbidden, code: core.ErrCodeForbidden},
		{name: "no token", path: "/api/rooms/course_101/messages", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.get(t, tt.path, tt.token)
			require.Equal(t, tt.status, status, string(body))

			if tt.status != http.StatusOK {
				var errResp ErrorResponse
				require.NoError(t, json.Unmarshal(body, &errResp))
				require.Equal(t, tt.code, errResp.Code)
				return
			}

			var page proto.History
			require.NoError(t, json.Unmarshal(body, &page))
			ids := make([]int64, 0, len(page.Messages))
			for _, m := range page.Messages {
				ids = append(ids, m.ID)
			}
			require.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestOnlineAndPresenceEndpoints(t *testing.T) {
	env := newTestEnv(t)
	seedRoom(t, env, "u1", "course_101")
	token := env.token(t, "u2")

	status, body := env.get(t, "/api/rooms/course_101/online", token)
	require.Equal(t, http.StatusOK, status)
	var online proto.OnlineUsers
	require.NoError(t, json.Unmarshal(body, &online))
	require.Equal(t, []string{"u1"}, online.Users)

	status, body = env.get(t, "/api/presence/u1", token)
	require.Equal(t, http.StatusOK, status)
	var presence PresenceResponse
	require.NoError(t, json.Unmarshal(body, &presence))
	require.True(t, presence.Online)

	status, body = env.get(t, "/api/presence/u2", token)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &presence))
	require.False(t, presence.Online)
}

func TestPrivateRoomEndpoint(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.get(t, "/api/private-rooms/u3", env.token(t, "u7"))
	require.Equal(t, http.StatusOK, status)

	var resp PrivateRoomResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Equal(t, "private-u3-u7", resp.RoomID)

	status, _ = env.get(t, "/api/private-rooms/bad%20peer", env.token(t, "u7"))
	require.Equal(t, http.StatusBadRequest, status)
}
