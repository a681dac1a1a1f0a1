package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	registry   *Registry
	hub        *Hub
	dispatcher *Dispatcher
	server     *httptest.Server
}

func newStack(t *testing.T, policy Policy, cfg HubConfig) *stack {
	t.Helper()
	registry := NewRegistry(policy)
	hub := NewHub(NewIngress(registry, testLogger()), cfg, testLogger())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return &stack{
		registry:   registry,
		hub:        hub,
		dispatcher: NewDispatcher(registry, hub, testLogger()),
		server:     server,
	}
}

func (s *stack) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func authenticate(t *testing.T, conn *websocket.Conn, user string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": EventAuthenticate,
		"data":  map[string]string{"userId": user},
	}))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHubAuthenticateAndNotify(t *testing.T) {
	s := newStack(t, PolicySingle, HubConfig{})
	conn := s.dial(t)
	authenticate(t, conn, "alice")

	require.Eventually(t, func() bool { return s.registry.Online("alice") }, 2*time.Second, 10*time.Millisecond)
	require.True(t, s.dispatcher.Notify("alice", "newMessage", map[string]string{"content": "hello"}))

	env := readEnvelope(t, conn)
	assert.Equal(t, "newMessage", env.Event)
	assert.JSONEq(t, `{"content":"hello"}`, string(env.Data))
}

func TestHubDisconnectClearsPresence(t *testing.T) {
	s := newStack(t, PolicySingle, HubConfig{})
	conn := s.dial(t)
	authenticate(t, conn, "alice")
	require.Eventually(t, func() bool { return s.registry.Online("alice") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return !s.registry.Online("alice") && s.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.dispatcher.Notify("alice", "newMessage", nil))
}

func TestHubSecondTabTakesOver(t *testing.T) {
	s := newStack(t, PolicySingle, HubConfig{})
	first := s.dial(t)
	authenticate(t, first, "alice")
	require.Eventually(t, func() bool { return s.registry.Online("alice") }, 2*time.Second, 10*time.Millisecond)
	firstID, _ := s.registry.Lookup("alice")

	second := s.dial(t)
	authenticate(t, second, "alice")
	require.Eventually(t, func() bool {
		id, ok := s.registry.Lookup("alice")
		return ok && id != firstID
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return s.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.registry.Online("alice"))

	require.True(t, s.dispatcher.Notify("alice", "ping-from-server", nil))
	env := readEnvelope(t, second)
	assert.Equal(t, "ping-from-server", env.Event)
}

func TestHubAcceptsNumericUserID(t *testing.T) {
	s := newStack(t, PolicySingle, HubConfig{})
	conn := s.dial(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"authenticate","data":{"userId":12}}`)))
	require.Eventually(t, func() bool { return s.registry.Online("12") }, 2*time.Second, 10*time.Millisecond)
}

func TestHubPingPong(t *testing.T) {
	s := newStack(t, PolicySingle, HubConfig{})
	conn := s.dial(t)
	require.NoError(t, conn.WriteJSON(map[string]string{"event": EventPing}))
	env := readEnvelope(t, conn)
	assert.Equal(t, EventPong, env.Event)
}

func TestHubIgnoresGarbageFrames(t *testing.T) {
	s := newStack(t, PolicySingle, HubConfig{})
	conn := s.dial(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"authenticate"}`)))
	authenticate(t, conn, "bob")
	require.Eventually(t, func() bool { return s.registry.Online("bob") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.registry.Users())
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	s := newStack(t, PolicySingle, HubConfig{AllowedOrigins: []string{"https://app.example.com"}})
	url := "ws" + strings.TrimPrefix(s.server.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://app.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestHubCloseDisconnectsEveryone(t *testing.T) {
	s := newStack(t, PolicySingle, HubConfig{})
	conn := s.dial(t)
	authenticate(t, conn, "alice")
	require.Eventually(t, func() bool { return s.registry.Online("alice") }, 2*time.Second, 10*time.Millisecond)

	s.hub.Close()

	require.Eventually(t, func() bool { return s.registry.Users() == 0 && s.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.hub.Send("anything", []byte("x")))
}
