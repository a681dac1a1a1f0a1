package realtime

import (
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu     sync.Mutex
	frames map[ConnID][][]byte
	refuse bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{frames: make(map[ConnID][][]byte)}
}

func (s *recordingSender) Send(conn ConnID, frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[conn] = append(s.frames[conn], frame)
	return !s.refuse
}

func (s *recordingSender) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, frames := range s.frames {
		n += len(frames)
	}
	return n
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestNotifyOfflineUser(t *testing.T) {
	sender := newRecordingSender()
	d := NewDispatcher(NewRegistry(PolicySingle), sender, testLogger())

	assert.False(t, d.Notify("alice", "newMessage", map[string]string{"content": "hi"}))
	assert.Equal(t, 0, sender.total())
}

func TestNotifyConnectedUserSendsOnce(t *testing.T) {
	registry := NewRegistry(PolicySingle)
	sender := newRecordingSender()
	d := NewDispatcher(registry, sender, testLogger())
	registry.Set("alice", "s1")

	require.True(t, d.Notify("alice", "newMessage", map[string]any{"chatId": 7, "content": "hi"}))
	require.Equal(t, 1, sender.total())

	var env Envelope
	require.NoError(t, json.Unmarshal(sender.frames["s1"][0], &env))
	assert.Equal(t, "newMessage", env.Event)
	assert.JSONEq(t, `{"chatId":7,"content":"hi"}`, string(env.Data))
}

func TestNotifyUsesLatestConnectionUnderSinglePolicy(t *testing.T) {
	registry := NewRegistry(PolicySingle)
	sender := newRecordingSender()
	d := NewDispatcher(registry, sender, testLogger())
	registry.Set("alice", "s1")
	registry.Set("alice", "s2")

	require.True(t, d.Notify("alice", "friendRequest", nil))
	assert.Empty(t, sender.frames["s1"])
	assert.Len(t, sender.frames["s2"], 1)
}

func TestNotifyFansOutUnderMultiPolicy(t *testing.T) {
	registry := NewRegistry(PolicyMulti)
	sender := newRecordingSender()
	d := NewDispatcher(registry, sender, testLogger())
	registry.Set("alice", "s1")
	registry.Set("alice", "s2")

	require.True(t, d.Notify("alice", "friendRequest", nil))
	assert.Len(t, sender.frames["s1"], 1)
	assert.Len(t, sender.frames["s2"], 1)
}

func TestNotifyReportsAttemptEvenWhenDropped(t *testing.T) {
	registry := NewRegistry(PolicySingle)
	sender := newRecordingSender()
	sender.refuse = true
	d := NewDispatcher(registry, sender, testLogger())
	registry.Set("alice", "s1")

	assert.True(t, d.Notify("alice", "newMessage", "hi"))
}

func TestNotifyUnencodablePayload(t *testing.T) {
	registry := NewRegistry(PolicySingle)
	sender := newRecordingSender()
	d := NewDispatcher(registry, sender, testLogger())
	registry.Set("alice", "s1")

	assert.False(t, d.Notify("alice", "broken", make(chan int)))
	assert.Equal(t, 0, sender.total())
}

func TestDispatcherOnline(t *testing.T) {
	registry := NewRegistry(PolicySingle)
	d := NewDispatcher(registry, newRecordingSender(), testLogger())
	assert.False(t, d.Online("alice"))
	registry.Set("alice", "s1")
	assert.True(t, d.Online("alice"))
	assert.Equal(t, 1, d.OnlineUsers())
}

func TestIngressIgnoresEmptyIdentifiers(t *testing.T) {
	registry := NewRegistry(PolicySingle)
	in := NewIngress(registry, testLogger())
	in.OnAuthenticate("s1", "")
	in.OnAuthenticate("", "alice")
	assert.Equal(t, 0, registry.Users())
}
