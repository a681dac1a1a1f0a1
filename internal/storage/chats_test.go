package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectChat(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := newUser(t, store, "1", "alice")
	bob := newUser(t, store, "2", "bob")

	_, err := store.FindDirectChat(ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	chat, err := store.CreateChat(ctx, "", ChatDirect, alice.ID, []int64{bob.ID, alice.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.ID, bob.ID}, chat.Participants)

	found, err := store.FindDirectChat(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, found.ID)
	assert.ElementsMatch(t, []int64{alice.ID, bob.ID}, found.Participants)

	_, err = store.CreateChat(ctx, "", ChatDirect, alice.ID, nil)
	assert.Error(t, err)
	_, err = store.CreateChat(ctx, "", "channel", alice.ID, []int64{bob.ID})
	assert.Error(t, err)
}

func TestListChatsAndParticipants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := newUser(t, store, "1", "alice")
	bob := newUser(t, store, "2", "bob")
	carol := newUser(t, store, "3", "carol")

	group, err := store.CreateChat(ctx, "team", ChatGroup, alice.ID, []int64{bob.ID, carol.ID})
	require.NoError(t, err)
	_, err = store.CreateChat(ctx, "", ChatDirect, alice.ID, []int64{bob.ID})
	require.NoError(t, err)

	chats, err := store.ListChats(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, chats, 2)

	chats, err = store.ListChats(ctx, carol.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "team", chats[0].Name)
	assert.Len(t, chats[0].Participants, 3)

	ok, err := store.IsParticipant(ctx, group.ID, carol.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := newUser(t, store, "1", "alice")
	bob := newUser(t, store, "2", "bob")
	carol := newUser(t, store, "3", "carol")

	chat, err := store.CreateChat(ctx, "", ChatDirect, alice.ID, []int64{bob.ID})
	require.NoError(t, err)

	var ids []int64
	for _, content := range []string{"one", "two", "three", "four"} {
		msg, err := store.CreateMessage(ctx, chat.ID, alice.ID, content)
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	_, err = store.CreateMessage(ctx, chat.ID, carol.ID, "intruder")
	assert.ErrorIs(t, err, ErrNotParticipant)
	_, err = store.CreateMessage(ctx, chat.ID, bob.ID, "   ")
	assert.Error(t, err)

	latest, err := store.ListMessages(ctx, chat.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "three", latest[0].Content)
	assert.Equal(t, "four", latest[1].Content)

	older, err := store.ListMessages(ctx, chat.ID, latest[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, ids[0], older[0].ID)
	assert.Equal(t, "two", older[1].Content)
}
