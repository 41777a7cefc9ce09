package inbox_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/expense-sync/internal/inbox"
	"github.com/dvloznov/expense-sync/internal/kv/sqlite"
)

func TestKVStore_RemembersAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inbox.db")

	db, err := sqlite.Open(path)
	require.NoError(t, err)
	store := inbox.NewKVStore(db)

	fresh, err := store.Claim(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, fresh)
	require.NoError(t, store.SaveMessage(ctx, &inbox.Message{ID: "m1", Body: "hi", Status: inbox.MessageStatusMatched}))
	require.NoError(t, db.Close())

	db, err = sqlite.Open(path)
	require.NoError(t, err)
	defer db.Close()
	store = inbox.NewKVStore(db)

	fresh, err = store.Claim(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, fresh)

	msg, err := store.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, inbox.MessageStatusMatched, msg.Status)

	_, err = store.GetMessage(ctx, "m2")
	assert.True(t, errors.Is(err, inbox.ErrMessageNotFound))
}

func TestKVStore_PendingAndRelease(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	defer db.Close()
	store := inbox.NewKVStore(db)

	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Claim(ctx, id)
		require.NoError(t, err)
		require.NoError(t, store.SaveMessage(ctx, &inbox.Message{ID: id, Status: inbox.MessageStatusPending}))
	}
	require.NoError(t, store.SaveMessage(ctx, &inbox.Message{ID: "b", Status: inbox.MessageStatusMatched}))
	require.NoError(t, store.Release(ctx, "c"))

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)

	_, err = store.GetMessage(ctx, "c")
	assert.True(t, errors.Is(err, inbox.ErrMessageNotFound))
	fresh, err := store.Claim(ctx, "c")
	require.NoError(t, err)
	assert.True(t, fresh, "released id can be claimed again")
}
