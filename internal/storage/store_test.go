package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("sqlite://file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func newUser(t *testing.T, store *Store, providerID, username string) *User {
	t.Helper()
	ctx := context.Background()
	user, created, err := store.FindOrCreateOAuthUser(ctx, ProviderGitHub, providerID, "")
	require.NoError(t, err)
	require.True(t, created)
	if username != "" {
		user, err = store.UpdateProfile(ctx, user.ID, ProfileUpdate{Username: &username})
		require.NoError(t, err)
	}
	return user
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestFindOrCreateOAuthUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, created, err := store.FindOrCreateOAuthUser(ctx, ProviderGoogle, "g-1", "https://img/a.png")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, user.ID)
	assert.Empty(t, user.Username)
	assert.True(t, user.FirstLogin)
	assert.Equal(t, StatusOffline, user.StatusType)
	assert.Equal(t, "https://img/a.png", user.ProfilePicture)

	again, created, err := store.FindOrCreateOAuthUser(ctx, ProviderGoogle, "g-1", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)

	other, created, err := store.FindOrCreateOAuthUser(ctx, ProviderDiscord, "g-1", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, user.ID, other.ID)

	_, _, err = store.FindOrCreateOAuthUser(ctx, Provider("myspace"), "x", "")
	assert.Error(t, err)
}

func TestUpdateProfile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := newUser(t, store, "1", "alice")
	bob := newUser(t, store, "2", "")

	text, kind := "coding", StatusBusy
	updated, err := store.UpdateProfile(ctx, alice.ID, ProfileUpdate{StatusText: &text, StatusType: &kind})
	require.NoError(t, err)
	assert.Equal(t, "alice", updated.Username)
	assert.Equal(t, "coding", updated.StatusText)
	assert.Equal(t, StatusBusy, updated.StatusType)

	taken := "alice"
	_, err = store.UpdateProfile(ctx, bob.ID, ProfileUpdate{Username: &taken})
	assert.ErrorIs(t, err, ErrUserExists)

	bad := "away"
	_, err = store.UpdateProfile(ctx, bob.ID, ProfileUpdate{StatusType: &bad})
	assert.Error(t, err)

	found, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)

	_, err = store.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetUserByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteFirstLogin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := newUser(t, store, "1", "alice")

	require.NoError(t, store.CompleteFirstLogin(ctx, alice.ID))
	user, err := store.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, user.FirstLogin)

	assert.ErrorIs(t, store.CompleteFirstLogin(ctx, 999), ErrNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	bob := newUser(t, store, "2", "bob")

	exp := time.Now().Add(time.Hour)
	require.NoError(t, store.CreateSession(ctx, bob.ID, "token123", exp))

	session, err := store.GetSession(ctx, "token123")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, session.UserID)
	assert.WithinDuration(t, exp, session.ExpiresAt, time.Second)

	require.NoError(t, store.DeleteSession(ctx, "token123"))
	_, err = store.GetSession(ctx, "token123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteExpiredSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	bob := newUser(t, store, "2", "bob")

	require.NoError(t, store.CreateSession(ctx, bob.ID, "old", time.Now().Add(-time.Hour)))
	require.NoError(t, store.CreateSession(ctx, bob.ID, "fresh", time.Now().Add(time.Hour)))

	n, err := store.DeleteExpiredSessions(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = store.GetSession(ctx, "fresh")
	assert.NoError(t, err)
}

func TestBuildDSN(t *testing.T) {
	assert.Equal(t, "file:chat.db?_pragma=busy_timeout=5000&_pragma=foreign_keys=ON", buildDSN("chat.db"))
	assert.Equal(t, "file:x?mode=memory&_pragma=busy_timeout=5000&_pragma=foreign_keys=ON", buildDSN("sqlite://file:x?mode=memory"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	assert.Error(t, err)
	_, err = Open("postgres", "")
	assert.Error(t, err)
}
