// Package realtime tracks which authenticated users hold a live socket
// connection and routes targeted events to them.
package realtime

import (
	"fmt"
	"strings"
	"sync"
)

// UserID identifies an authenticated account. It is issued by the auth layer.
type UserID string

// ConnID identifies one socket connection. A reconnecting client gets a new one.
type ConnID string

// Policy decides what happens when a user authenticates on a second
// connection without closing the first.
type Policy string

const (
	// PolicySingle keeps only the most recent connection per user. The
	// previous connection id is discarded without notice.
	PolicySingle Policy = "single"
	// PolicyMulti keeps every live connection of a user and fans events out
	// to all of them.
	PolicyMulti Policy = "multi"
)

// ParsePolicy maps a config value to a Policy. Empty means PolicySingle.
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(PolicySingle), "single-connection":
		return PolicySingle, nil
	case string(PolicyMulti), "multi-connection", "fanout", "fan-out":
		return PolicyMulti, nil
	}
	return "", fmt.Errorf("unknown presence policy %q", value)
}

// Registry maps users to their live connections. All methods are safe for
// concurrent use; each one runs under a single mutex so no caller observes a
// half-applied mutation.
type Registry struct {
	mu     sync.RWMutex
	policy Policy
	byUser map[UserID][]ConnID // oldest first
	byConn map[ConnID]UserID
}

// NewRegistry returns an empty registry using the given policy.
func NewRegistry(policy Policy) *Registry {
	if policy == "" {
		policy = PolicySingle
	}
	return &Registry{
		policy: policy,
		byUser: make(map[UserID][]ConnID),
		byConn: make(map[ConnID]UserID),
	}
}

// Policy reports the duplicate-login policy in effect.
func (r *Registry) Policy() Policy {
	return r.policy
}

// Set records conn as a live connection of user. Under PolicySingle any
// earlier connection of the same user is forgotten. A connection belongs to
// at most one user, so re-binding conn to another user detaches it first.
func (r *Registry) Set(user UserID, conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byConn[conn]; ok {
		r.detachLocked(owner, conn)
	}
	if r.policy == PolicySingle {
		for _, stale := range r.byUser[user] {
			delete(r.byConn, stale)
		}
		delete(r.byUser, user)
	}
	r.byUser[user] = append(r.byUser[user], conn)
	r.byConn[conn] = user
}

// Remove forgets conn. It reports the user the connection belonged to, or
// false when conn was unknown (including a connection already superseded
// under PolicySingle).
func (r *Registry) Remove(conn ConnID) (UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.byConn[conn]
	if !ok {
		return "", false
	}
	r.detachLocked(owner, conn)
	return owner, true
}

// Lookup returns the current connection of user. With PolicyMulti it is the
// most recently authenticated one.
func (r *Registry) Lookup(user UserID) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[user]
	if len(conns) == 0 {
		return "", false
	}
	return conns[len(conns)-1], true
}

// Connections returns a copy of every live connection of user.
func (r *Registry) Connections(user UserID) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[user]
	if len(conns) == 0 {
		return nil
	}
	out := make([]ConnID, len(conns))
	copy(out, conns)
	return out
}

// Online reports whether user has at least one live connection.
func (r *Registry) Online(user UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[user]) > 0
}

// Owner returns the user a connection authenticated as.
func (r *Registry) Owner(conn ConnID) (UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byConn[conn]
	return user, ok
}

// Users returns the number of users with at least one live connection.
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// detachLocked removes conn from user's list. Caller holds r.mu.
func (r *Registry) detachLocked(user UserID, conn ConnID) {
	delete(r.byConn, conn)
	conns := r.byUser[user]
	for i, c := range conns {
		if c == conn {
			conns = append(conns[:i:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(r.byUser, user)
		return
	}
	r.byUser[user] = conns
}
