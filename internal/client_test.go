package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/realtime"
	"hermes/internal/storage"
)

func TestSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":        "ws://localhost:8080/ws",
		"https://chat.example.com/":    "wss://chat.example.com/ws",
		"ws://localhost:8080/ws":       "ws://localhost:8080/ws",
		"https://example.com/hermes":   "wss://example.com/hermes/ws",
		"http://localhost:8080/?a=b#x": "ws://localhost:8080/ws",
	}
	for in, want := range cases {
		got, err := SocketURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "ftp://host", "http://"} {
		_, err := SocketURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestHTTPBaseFromSocketURL(t *testing.T) {
	base, err := httpBaseFromSocketURL("wss://chat.example.com/ws")
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", base)

	_, err = httpBaseFromSocketURL("http://chat.example.com")
	assert.Error(t, err)
}

func TestSessionFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	want := SessionFile{Server: "http://localhost:8080", Token: "abc", UserID: "7"}
	require.NoError(t, SaveSession(path, want))

	got, err := LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	require.NoError(t, DeleteSession(path))
	require.NoError(t, DeleteSession(path))
	_, err = LoadSession(path)
	assert.Error(t, err)
}

func TestLoadSessionRejectsEmptyToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, SaveSession(path, SessionFile{Server: "http://x"}))
	_, err := LoadSession(path)
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, backoff(0))
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 16*time.Second, backoff(4))
	assert.Equal(t, 30*time.Second, backoff(5))
	assert.Equal(t, 30*time.Second, backoff(50))
}

func envelope(t *testing.T, event string, payload any) realtime.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return realtime.Envelope{Event: event, Data: raw}
}

func TestSummarizeEvent(t *testing.T) {
	tests := []struct {
		name string
		env  realtime.Envelope
		want string
	}{
		{
			name: "message",
			env:  envelope(t, EventNewMessage, storage.Message{ID: 1, ChatID: 3, SenderID: 9, Content: "hi"}),
			want: "chat #3, user 9: hi",
		},
		{
			name: "friend request",
			env:  envelope(t, EventFriendRequest, map[string]any{"from": storage.User{ID: 2, Username: "ada"}}),
			want: "friend request from ada",
		},
		{
			name: "accepted without username",
			env:  envelope(t, EventFriendRequestAccepted, map[string]any{"by": storage.User{ID: 5}}),
			want: "user 5 accepted your friend request",
		},
		{
			name: "named chat",
			env:  envelope(t, EventChatCreated, storage.Chat{ID: 4, Name: "ops", Type: storage.ChatGroup}),
			want: `added to group chat "ops"`,
		},
		{
			name: "unknown event",
			env:  envelope(t, "custom", map[string]int{"n": 1}),
			want: `{"n":1}`,
		},
		{
			name: "no data",
			env:  realtime.Envelope{Event: "custom"},
			want: "custom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, summarizeEvent(tt.env))
		})
	}
}

func newModel(t *testing.T) *WatchModel {
	t.Helper()
	model, err := NewWatchModel("ws://localhost:1/ws", "token", "1")
	require.NoError(t, err)
	return model
}

func TestWatchModelUpdate(t *testing.T) {
	model := newModel(t)
	model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	require.True(t, model.ready)
	assert.Equal(t, 24-headerHeight-footerHeight, model.viewport.Height)

	_, cmd := model.Update(eventMsg(envelope(t, EventFriendRequest, map[string]any{"from": storage.User{ID: 2, Username: "ada"}})))
	assert.NotNil(t, cmd)
	require.Len(t, model.events, 1)
	assert.Equal(t, EventFriendRequest, model.events[0].Event)
	assert.Contains(t, model.View(), "friend request from ada")

	model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.Empty(t, model.events)
}

func TestWatchModelReconnects(t *testing.T) {
	model := newModel(t)
	_, cmd := model.Update(disconnectedMsg{err: errors.New("boom")})
	assert.NotNil(t, cmd)
	assert.Equal(t, 1, model.attempt)
	assert.False(t, model.isConnected)
	assert.Contains(t, model.View(), "boom")

	_, cmd = model.Update(disconnectedMsg{err: errUnauthorized})
	assert.Nil(t, cmd)
}

func TestWatchModelTrimsLog(t *testing.T) {
	model := newModel(t)
	for i := 0; i < maxWatchEvents+10; i++ {
		model.systemNotice(strconv.Itoa(i))
	}
	require.Len(t, model.events, maxWatchEvents)
	assert.Equal(t, "10", model.events[0].Summary)
}

func TestWatchConnectReceivesEvents(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.signUp(t, "gh-1", "alice")
	bob, bobToken := env.signUp(t, "gh-2", "bob")

	model, err := NewWatchModel("ws"+strings.TrimPrefix(env.server.URL, "http")+"/ws", bobToken, "")
	require.NoError(t, err)

	msg := model.connectCmd()()
	connected, ok := msg.(connectedMsg)
	require.True(t, ok, "got %#v", msg)
	assert.Equal(t, strconv.FormatInt(bob.ID, 10), connected.userID)
	assert.Equal(t, "bob", connected.username)

	model.Update(connected)
	defer model.closeConn()
	require.Eventually(t, func() bool {
		return env.registry.Online(realtime.UserID(strconv.FormatInt(bob.ID, 10)))
	}, 2*time.Second, 10*time.Millisecond)

	status, _ := env.do(t, http.MethodPost, "/api/friends/requests", aliceToken, map[string]string{"username": "bob"})
	require.Equal(t, http.StatusCreated, status)

	got, ok := model.readOnceCmd()().(eventMsg)
	require.True(t, ok)
	assert.Equal(t, EventFriendRequest, got.Event)
	assert.Equal(t, "friend request from "+alice.Username, summarizeEvent(realtime.Envelope(got)))
}

func TestWatchConnectRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	model, err := NewWatchModel("ws"+strings.TrimPrefix(env.server.URL, "http")+"/ws", "nope", "")
	require.NoError(t, err)

	msg, ok := model.connectCmd()().(disconnectedMsg)
	require.True(t, ok)
	assert.ErrorIs(t, msg.err, errUnauthorized)
}
