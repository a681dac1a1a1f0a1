package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupBeforeSet(t *testing.T) {
	r := NewRegistry(PolicySingle)
	_, ok := r.Lookup("alice")
	assert.False(t, ok)
	assert.False(t, r.Online("alice"))
	assert.Equal(t, 0, r.Users())
}

func TestRegistrySetLookupRemove(t *testing.T) {
	r := NewRegistry(PolicySingle)
	r.Set("alice", "c1")

	conn, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, ConnID("c1"), conn)

	user, removed := r.Remove("c1")
	require.True(t, removed)
	assert.Equal(t, UserID("alice"), user)

	_, ok = r.Lookup("alice")
	assert.False(t, ok)
}

func TestRegistrySetIsIdempotent(t *testing.T) {
	r := NewRegistry(PolicySingle)
	r.Set("alice", "c1")
	r.Set("alice", "c1")

	assert.Equal(t, []ConnID{"c1"}, r.Connections("alice"))
	assert.Equal(t, 1, r.Users())
}

func TestRegistryRemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry(PolicySingle)
	r.Set("alice", "c1")

	_, removed := r.Remove("nope")
	assert.False(t, removed)

	conn, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, ConnID("c1"), conn)
}

func TestRegistrySingleOverwrite(t *testing.T) {
	r := NewRegistry(PolicySingle)
	r.Set("alice", "c1")
	r.Set("alice", "c2")

	conn, _ := r.Lookup("alice")
	assert.Equal(t, ConnID("c2"), conn)

	_, removed := r.Remove("c1")
	assert.False(t, removed, "stale connection must not clear the entry")
	conn, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, ConnID("c2"), conn)

	_, removed = r.Remove("c2")
	assert.True(t, removed)
	_, ok = r.Lookup("alice")
	assert.False(t, ok)
}

func TestRegistryTwoTabScenario(t *testing.T) {
	r := NewRegistry(PolicySingle)
	in := NewIngress(r, testLogger())

	in.OnConnect("s1")
	in.OnAuthenticate("s1", "alice")
	conn, _ := r.Lookup("alice")
	assert.Equal(t, ConnID("s1"), conn)

	in.OnConnect("s2")
	in.OnAuthenticate("s2", "alice")
	conn, _ = r.Lookup("alice")
	assert.Equal(t, ConnID("s2"), conn)

	in.OnDisconnect("s1")
	conn, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, ConnID("s2"), conn)

	in.OnDisconnect("s2")
	_, ok = r.Lookup("alice")
	assert.False(t, ok)
}

func TestRegistryMultiKeepsEveryConnection(t *testing.T) {
	r := NewRegistry(PolicyMulti)
	r.Set("alice", "s1")
	r.Set("alice", "s2")

	assert.Equal(t, []ConnID{"s1", "s2"}, r.Connections("alice"))
	conn, _ := r.Lookup("alice")
	assert.Equal(t, ConnID("s2"), conn)

	r.Remove("s2")
	conn, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, ConnID("s1"), conn)

	r.Remove("s1")
	assert.False(t, r.Online("alice"))
}

func TestRegistryMultiReauthenticateMovesToFront(t *testing.T) {
	r := NewRegistry(PolicyMulti)
	r.Set("alice", "s1")
	r.Set("alice", "s2")
	r.Set("alice", "s1")

	assert.Equal(t, []ConnID{"s2", "s1"}, r.Connections("alice"))
}

func TestRegistryConnectionRebindsToNewUser(t *testing.T) {
	r := NewRegistry(PolicySingle)
	r.Set("alice", "c1")
	r.Set("bob", "c1")

	assert.False(t, r.Online("alice"))
	owner, ok := r.Owner("c1")
	require.True(t, ok)
	assert.Equal(t, UserID("bob"), owner)

	user, removed := r.Remove("c1")
	assert.True(t, removed)
	assert.Equal(t, UserID("bob"), user)
	assert.Equal(t, 0, r.Users())
}

func TestRegistryConnectionsReturnsCopy(t *testing.T) {
	r := NewRegistry(PolicyMulti)
	r.Set("alice", "s1")
	conns := r.Connections("alice")
	conns[0] = "mutated"

	conn, _ := r.Lookup("alice")
	assert.Equal(t, ConnID("s1"), conn)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(PolicyMulti)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := UserID(fmt.Sprintf("user-%d", i%4))
			conn := ConnID(fmt.Sprintf("conn-%d", i))
			r.Set(user, conn)
			r.Lookup(user)
			r.Remove(conn)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Users())
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{
		"":                  PolicySingle,
		"single":            PolicySingle,
		"single-connection": PolicySingle,
		"MULTI":             PolicyMulti,
		"fan-out":           PolicyMulti,
	}
	for input, want := range cases {
		got, err := ParsePolicy(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	_, err := ParsePolicy("broadcast")
	assert.Error(t, err)
}
